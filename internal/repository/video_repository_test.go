package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/level-portal-api/internal/models"
)

func TestVideoRepositoryFindBySheet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	rows := sqlmock.NewRows([]string{"id", "level", "sheet_start", "sheet_end", "video_url", "storage_key", "filename", "created_at"}).
		AddRow("v2", 2, 6, 10, "https://cdn/L2_6_10.mp4", "videos/L2_6_10.mp4", "L2_6_10.mp4", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE level = $1 AND sheet_start <= $2 AND sheet_end >= $2 ORDER BY sheet_start LIMIT 1")).
		WithArgs(2, 7).
		WillReturnRows(rows)

	video, err := repo.FindBySheet(context.Background(), 2, 7)
	require.NoError(t, err)
	require.NotNil(t, video)
	assert.Equal(t, "v2", video.ID)
	assert.Equal(t, models.SheetRange{Level: 2, SheetStart: 6, SheetEnd: 10}.CanonicalFilename(), video.Filename)
}

func TestVideoRepositoryFindNextAbsent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE level = $1 AND sheet_start > $2 ORDER BY sheet_start LIMIT 1")).
		WithArgs(2, 10).
		WillReturnError(sql.ErrNoRows)

	video, err := repo.FindNext(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Nil(t, video)
}

func TestVideoRepositoryStorageKeys(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT storage_key FROM videos WHERE storage_key IS NOT NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("a.mp4").AddRow("b.mp4"))

	keys, err := repo.StorageKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "a.mp4")
}

func TestVideoRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectExec("INSERT INTO videos").WillReturnResult(sqlmock.NewResult(1, 1))

	video := &models.VideoAsset{Level: 1, SheetStart: 1, SheetEnd: 5, URL: "https://drive/x", Filename: "L1_1_5_gdrive"}
	require.NoError(t, repo.Create(context.Background(), video))
	assert.NotEmpty(t, video.ID)
	assert.False(t, video.CreatedAt.IsZero())
}

func TestVideoRepositoryCreateDuplicateStorageKey(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectExec("INSERT INTO videos").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "videos_storage_key_key"})

	key := "L1_1_5.mp4"
	err := repo.Create(context.Background(), &models.VideoAsset{Level: 1, SheetStart: 1, SheetEnd: 5, StorageKey: &key, Filename: key})
	assert.ErrorIs(t, err, ErrVideoExists)

	mock.ExpectExec("INSERT INTO videos").
		WillReturnError(&pq.Error{Code: "23514", Constraint: "videos_check"})
	err = repo.Create(context.Background(), &models.VideoAsset{Level: 1, SheetStart: 5, SheetEnd: 1, StorageKey: &key, Filename: key})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVideoExists)
}

func TestVideoRepositoryFindStoredByFilename(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE filename = $1 AND storage_key IS NOT NULL LIMIT 1")).
		WithArgs("L1_1_5.mp4").
		WillReturnRows(sqlmock.NewRows([]string{"id", "level", "sheet_start", "sheet_end", "video_url", "storage_key", "filename", "created_at"}).
			AddRow("v1", 1, 1, 5, "/media/x", "videos/L1_1_5.mp4", "L1_1_5.mp4", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE storage_key = $1")).
		WithArgs("videos/L9_1_5.mp4").
		WillReturnError(sql.ErrNoRows)

	video, err := repo.FindStoredByFilename(context.Background(), "L1_1_5.mp4")
	require.NoError(t, err)
	require.NotNil(t, video)
	assert.Equal(t, "v1", video.ID)

	video, err = repo.FindByStorageKey(context.Background(), "videos/L9_1_5.mp4")
	require.NoError(t, err)
	assert.Nil(t, video)
}
