package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retaillens/internal/pipeline/domain"
	"github.com/smallbiznis/retaillens/pkg/db"
	"github.com/smallbiznis/retaillens/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestRunLifecycle(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Run{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := Provide()
	ctx := context.Background()

	run := &domain.Run{
		ID:            node.Generate(),
		Kind:          domain.KindRun,
		Status:        domain.StatusRunning,
		CorrelationID: "01HZX",
		StartedAt:     time.Now().UTC(),
	}
	require.NoError(t, repo.Insert(ctx, conn, run))

	finished := time.Now().UTC()
	run.Status = domain.StatusSucceeded
	run.FinishedAt = &finished
	run.Stats = datatypes.JSONMap{"facts_inserted": 3}
	require.NoError(t, repo.Finish(ctx, conn, run))

	stored, err := repo.FindByID(ctx, conn, run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusSucceeded, stored.Status)
	require.NotNil(t, stored.FinishedAt)
	assert.EqualValues(t, 3, stored.Stats["facts_inserted"])

	missing, err := repo.FindByID(ctx, conn, node.Generate())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListPagesNewestFirst(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Run{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := Provide()
	ctx := context.Background()

	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		run := &domain.Run{ID: node.Generate(), Kind: domain.KindLoad, Status: domain.StatusSucceeded, StartedAt: time.Now().UTC()}
		require.NoError(t, repo.Insert(ctx, conn, run))
		ids = append(ids, run.ID)
	}

	page, err := repo.List(ctx, conn, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[2], page[0].ID)

	token, err := pagination.EncodeCursor(pagination.Cursor{ID: page[1].ID.String()})
	require.NoError(t, err)
	next, err := repo.List(ctx, conn, pagination.Pagination{PageToken: token, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, ids[0], next[0].ID)
}
