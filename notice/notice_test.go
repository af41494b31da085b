package notice_test

import (
	"testing"
	"time"

	"github.com/matt-kaep/WI-frontend/notice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardExpiresNotices(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	board := notice.NewBoard(5 * time.Second).WithClock(func() time.Time { return now })

	board.Post(notice.Info, "Computing connections can take 2 to 5 minutes")
	now = now.Add(3 * time.Second)
	board.Post(notice.Success, "Done")

	require.Len(t, board.Active(), 2)

	now = now.Add(3 * time.Second)
	active := board.Active()
	require.Len(t, active, 1)
	assert.Equal(t, notice.Success, active[0].Kind)

	last, ok := board.Last()
	require.True(t, ok)
	assert.Equal(t, "Done", last.Message)

	now = now.Add(5 * time.Second)
	_, ok = board.Last()
	assert.False(t, ok)
}

func TestBoardDismiss(t *testing.T) {
	board := notice.NewBoard(time.Minute)
	board.Post(notice.Error, "boom")
	board.Dismiss()
	assert.Empty(t, board.Active())
}
