package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/keyip-combinator/pkg/errors"
)

func TestMigrateLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := migrateLogger{logger: logging.NewLoggerFromCore(core)}

	l.Printf("Start buffering %d/u %s\n", 2, "variant_index")

	assert.False(t, l.Verbose())
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
	assert.Equal(t, "Start buffering 2/u variant_index", entry.Message)
	assert.Equal(t, "migrate", entry.ContextMap()["component"])
}

func TestRollbackMigration_RejectsNonPositiveSteps(t *testing.T) {
	conn := &Connection{logger: logging.NewNopLogger()}
	err := conn.RollbackMigration(0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidParam))
}

//Personal.AI order the ending
