package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vporoshin/flowtime/internal/lockfile"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(lockfile.ErrLocked))
	assert.Equal(t, 2, exitCode(fmt.Errorf("sync: %w", lockfile.ErrLocked)))
	assert.Equal(t, 130, exitCode(fmt.Errorf("search: %w", context.Canceled)))
	assert.Equal(t, 130, exitCode(context.DeadlineExceeded))
	assert.Equal(t, 1, exitCode(fmt.Errorf("boom")))
}

func TestShortCommit(t *testing.T) {
	assert.Equal(t, "abc", shortCommit("abc"))
	assert.Equal(t, "0123456789ab", shortCommit("0123456789abcdef0123"))
}
