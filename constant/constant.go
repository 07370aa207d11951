package constant

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusFailed     JobStatus = "failed"
	JobStatusComplete   JobStatus = "complete"
)

func (s JobStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

type JobType string

const (
	JobTypeIngest    JobType = "ingest"
	JobTypeTransform JobType = "transform"
)

func (t JobType) String() string {
	return string(t)
}

// OutputKind names one logical stream produced by the processing capability.
type OutputKind string

const (
	OutputIsolated        OutputKind = "isolated"
	OutputWithoutIsolated OutputKind = "without_isolated"
)

var OutputKinds = []OutputKind{OutputIsolated, OutputWithoutIsolated}

type Encoding string

const (
	EncodingWAV Encoding = "wav"
	EncodingMP3 Encoding = "mp3"
)

var Encodings = []Encoding{EncodingWAV, EncodingMP3}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

const (
	StoreDriverJSON     = "json"
	StoreDriverPostgres = "postgres"

	StorageDriverLocal = "local"
	StorageDriverMinio = "minio"

	CapabilityDriverHTTP = "http"
	CapabilityDriverFake = "fake"
)
