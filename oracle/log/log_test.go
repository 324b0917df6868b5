package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLevelsAndOutput(t *testing.T) {
	defer InitLogger()
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("info")

	Debugf("hidden %d", 1)
	Infof("oracle registered %s", "0xabc")
	Warn("queue full")
	Errorf("submit failed: %v", "reverted")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"level":"info"`)
	require.Contains(t, out, "oracle registered 0xabc")
	require.Contains(t, out, `"level":"warn"`)
	require.Contains(t, out, "submit failed: reverted")

	buf.Reset()
	SetLevel("debug")
	Debug("visible")
	require.Contains(t, buf.String(), "visible")
}

func TestWith(t *testing.T) {
	defer InitLogger()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("info")

	l := With("oracle", "0x01")
	l.Info().Msg("response submitted")

	require.Contains(t, buf.String(), `"oracle":"0x01"`)
}

func TestResetLogger(t *testing.T) {
	defer InitLogger()

	home := t.TempDir()
	ResetLogger(home)
	Infof("written to file")

	require.Equal(t, filepath.Join(home, "logs"), Dir())
	entries, err := os.ReadDir(Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(Dir(), entries[0].Name()))
	require.NoError(t, err)
	require.Contains(t, string(data), "written to file")
}
