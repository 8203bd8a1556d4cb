package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreyAkinshin/fleetbuild/internal/record"
)

var stamp = time.Date(2018, 3, 12, 9, 30, 0, 0, time.UTC)

func sampleRecords() []record.Record {
	return []record.Record{
		{Type: record.TypeDistgitCommit, Fields: map[string]string{"distgit": "containers/ose", "image": "openshift3/ose", "sha": "abc123"}, Time: stamp},
		{Type: record.TypeImageBuildMetrics, Fields: map[string]string{"elapsed_wait_minutes": "1", "task_count": "3"}, Time: stamp},
	}
}

func TestFileStore_Persist(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "work", "record.log")
	s := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, s.Persist(ctx, "run-1", sampleRecords()))
	require.NoError(t, s.Persist(ctx, "run-2", sampleRecords()[:1]))
	require.NoError(t, s.Persist(ctx, "run-3", nil))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "distgit_commit|distgit=containers/ose|image=openshift3/ose|sha=abc123|\n" +
		"image_build_metrics|elapsed_wait_minutes=1|task_count=3|\n" +
		"distgit_commit|distgit=containers/ose|image=openshift3/ose|sha=abc123|\n"
	assert.Equal(t, want, string(data))
}

func TestFileStore_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "record.log")
	err := NewFileStore(path).Persist(ctx, "run", sampleRecords())
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func setupRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_Persist(t *testing.T) {
	s, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Persist(ctx, "run-1", sampleRecords()))
	require.NoError(t, s.Persist(ctx, "run-2", sampleRecords()[1:]))
	require.NoError(t, s.Persist(ctx, "run-3", nil))

	runs, err := mr.List(redisRunsKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1", "run-2"}, runs)

	loaded, err := s.Load(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, record.TypeDistgitCommit, loaded[0].Type)
	assert.Equal(t, "abc123", loaded[0].Fields["sha"])
	assert.True(t, stamp.Equal(loaded[0].Time))
	assert.Equal(t, record.TypeImageBuildMetrics, loaded[1].Type)
}

func TestRedisStore_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisStore(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}

func TestRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "redis://host:port:extra/x/y")
	assert.Error(t, err)
}

func setupMockDB(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &PostgresStore{db: db}, mock
}

func TestPostgresStore_Persist(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO run_records")
	prep.ExpectExec().
		WithArgs("run-1", record.TypeDistgitCommit, sqlmock.AnyArg(), stamp).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs("run-1", record.TypeImageBuildMetrics, sqlmock.AnyArg(), stamp).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Persist(context.Background(), "run-1", sampleRecords()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PersistRollsBack(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO run_records")
	prep.ExpectExec().
		WithArgs("run-1", record.TypeDistgitCommit, sqlmock.AnyArg(), stamp).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.Persist(context.Background(), "run-1", sampleRecords())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EmptyIsNoop(t *testing.T) {
	s, mock := setupMockDB(t)
	require.NoError(t, s.Persist(context.Background(), "run-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	s, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS run_records").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(ctx, "", filepath.Join(dir, "default.log"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "default.log"), s.(*FileStore).Path())

	s, err = Open(ctx, filepath.Join(dir, "plain.log"), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "plain.log"), s.(*FileStore).Path())

	s, err = Open(ctx, "file://"+filepath.Join(dir, "url.log"), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "url.log"), s.(*FileStore).Path())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	s, err = Open(ctx, "redis://"+mr.Addr(), "")
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "s3://bucket/records", "")
	assert.Error(t, err)
}
