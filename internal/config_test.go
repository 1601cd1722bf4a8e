package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", "/tmp/relay")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)

	req.NoError(err)
	req.NoError(config.Validate())
	req.Equal(4000, config.Port)
	req.Equal(200, config.HistoryLimit)
	req.Equal([]string{"http://localhost:5173"}, config.Origins())
}

func TestConfig_Validate(t *testing.T) {
	req := require.New(t)
	config := Config{BufferSize: 0}

	req.Error(config.Validate())
}

func TestConfig_Origins(t *testing.T) {
	req := require.New(t)
	config := Config{AllowedOrigins: "https://a.io, https://b.io,,"}

	req.Equal([]string{"https://a.io", "https://b.io"}, config.Origins())
}

func TestConfig_ServiceAccount(t *testing.T) {
	req := require.New(t)

	// Inline JSON
	inline := Config{FirebaseServiceAccount: ` {"project_id":"p"}`}
	raw, err := inline.ServiceAccount()
	req.NoError(err)
	req.JSONEq(`{"project_id":"p"}`, string(raw))

	// Path to a file
	path := filepath.Join(t.TempDir(), "account.json")
	req.NoError(os.WriteFile(path, []byte(`{"project_id":"q"}`), 0o600))
	fromFile := Config{FirebaseServiceAccount: path}
	raw, err = fromFile.ServiceAccount()
	req.NoError(err)
	req.JSONEq(`{"project_id":"q"}`, string(raw))

	// Not configured
	raw, err = Config{}.ServiceAccount()
	req.NoError(err)
	req.Nil(raw)
}
