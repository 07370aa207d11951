package repository

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"audio-isolator/entities"
)

// repo is the postgres-backed JobRepository.
type repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *sql.DB) (JobRepository, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	if err != nil {
		return nil, &StoreIOError{Op: "open", Err: err}
	}

	err = gormDB.AutoMigrate(&entities.IngestJob{}, &entities.Chunk{}, &entities.TransformJob{}, &entities.OutputChunk{})
	if err != nil {
		return nil, &StoreIOError{Op: "migrate", Err: err}
	}

	return &repo{
		db:  gormDB,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *repo) IngestJobs() IngestJobs {
	return &gormCollection[*entities.IngestJob, IngestJobFilter, IngestJobPatch]{
		db: r.db, now: r.now, keys: []string{"id"},
		model: func() *entities.IngestJob { return &entities.IngestJob{} },
	}
}

func (r *repo) Chunks() Chunks {
	return &gormCollection[*entities.Chunk, ChunkFilter, ChunkPatch]{
		db: r.db, now: r.now, keys: []string{"upload_id", "chunk_index"},
		model: func() *entities.Chunk { return &entities.Chunk{} },
	}
}

func (r *repo) TransformJobs() TransformJobs {
	return &gormCollection[*entities.TransformJob, TransformJobFilter, TransformJobPatch]{
		db: r.db, now: r.now, keys: []string{"id"},
		model: func() *entities.TransformJob { return &entities.TransformJob{} },
	}
}

func (r *repo) OutputChunks() OutputChunks {
	return &gormCollection[*entities.OutputChunk, OutputChunkFilter, OutputChunkPatch]{
		db: r.db, now: r.now, keys: []string{"output_id", "chunk_index"},
		model: func() *entities.OutputChunk { return &entities.OutputChunk{} },
	}
}

func (r *repo) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

type gormCollection[R Record, F Filter[R], P Patch[R]] struct {
	db    *gorm.DB
	now   func() time.Time
	// keys is the primary key, used to order rows that tie on the sort column.
	keys  []string
	model func() R
}

func (c *gormCollection[R, F, P]) Insert(ctx context.Context, record R) error {
	record.EnsureCreatedAt(c.now())
	if err := c.db.WithContext(ctx).Create(record).Error; err != nil {
		return &StoreIOError{Op: "insert", Err: err}
	}
	return nil
}

func (c *gormCollection[R, F, P]) UpdateWhere(ctx context.Context, filter F, patch P) (int, error) {
	cols := patch.Columns()
	if len(cols) == 0 {
		return 0, nil
	}
	res := c.db.WithContext(ctx).Model(c.model()).Where(filter.Where()).Updates(cols)
	if res.Error != nil {
		return 0, &StoreIOError{Op: "update", Err: res.Error}
	}
	return int(res.RowsAffected), nil
}

func (c *gormCollection[R, F, P]) SelectWhere(ctx context.Context, filter F, order ...Order[R]) ([]R, error) {
	var out []R
	q := c.db.WithContext(ctx).Model(c.model())
	if where := filter.Where(); len(where) > 0 {
		q = q.Where(where)
	}
	if len(order) > 0 && order[0].Column != "" {
		q = q.Clauses(orderBy(order[0].Column, c.keys))
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, &StoreIOError{Op: "select", Err: err}
	}
	return out, nil
}

func orderBy(column string, keys []string) clause.OrderBy {
	columns := []clause.OrderByColumn{{Column: clause.Column{Name: column}}}
	for _, key := range keys {
		if key != column {
			columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: key}})
		}
	}
	return clause.OrderBy{Columns: columns}
}
