package datatransfer

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFile is the configuration file read when none is given.
const DefaultConfigFile = "config.json"

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. DATA_TRANSFER_PASSWORD.
const EnvPrefix = "DATA_TRANSFER"

// DefaultTimeout bounds TCP connect plus SSH handshake when the config has
// no timeout key.
const DefaultTimeout = 30 * time.Second

// configFileMode keeps the password readable by the owner only.
const configFileMode = 0600

// ConnectionDescriptor holds everything needed to open a session.
// It is a value type and is never mutated after LoadConfig returns it.
type ConnectionDescriptor struct {
	// Host is the remote hostname or IP address.
	Host string

	// Port is the SSH port.
	Port int

	// Username is the login name on the remote host.
	Username string

	// Password is used for password and keyboard-interactive authentication.
	Password string

	// Timeout bounds dialing and the SSH handshake (default 30s).
	Timeout time.Duration

	// KnownHostsFile is the path to a known_hosts file for host key verification.
	// If not set, defaults to ~/.ssh/known_hosts if it exists.
	KnownHostsFile string

	// InsecureIgnoreHostKey skips host key verification.
	InsecureIgnoreHostKey bool
}

// Addr returns host:port.
func (d ConnectionDescriptor) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// String renders the descriptor without the password.
func (d ConnectionDescriptor) String() string {
	return fmt.Sprintf("%s@%s", d.Username, d.Addr())
}

// WithDefaults returns a copy of the descriptor with default values applied.
func (d ConnectionDescriptor) WithDefaults() ConnectionDescriptor {
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	return d
}

// Validate checks the four required fields.
func (d ConnectionDescriptor) Validate() error {
	if strings.TrimSpace(d.Host) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrConfig)
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrConfig, d.Port)
	}
	if strings.TrimSpace(d.Username) == "" {
		return fmt.Errorf("%w: username must not be empty", ErrConfig)
	}
	return nil
}

// LoadConfig reads a JSON configuration file. The keys host, port,
// username and password are required; timeout, known_hosts_file and
// insecure_ignore_host_key are optional. Any key can be overridden by an
// environment variable named EnvPrefix_KEY.
func LoadConfig(path string) (ConnectionDescriptor, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return ConnectionDescriptor{}, fmt.Errorf("%w: failed to read %s: %w", ErrConfig, path, err)
	}

	return decodeConfig(v)
}

func decodeConfig(v *viper.Viper) (ConnectionDescriptor, error) {
	var d ConnectionDescriptor
	var err error

	if d.Host, err = stringField(v, "host"); err != nil {
		return ConnectionDescriptor{}, err
	}
	if d.Port, err = portField(v, "port"); err != nil {
		return ConnectionDescriptor{}, err
	}
	if d.Username, err = stringField(v, "username"); err != nil {
		return ConnectionDescriptor{}, err
	}
	if d.Password, err = stringField(v, "password"); err != nil {
		return ConnectionDescriptor{}, err
	}

	if v.IsSet("timeout") {
		if d.Timeout, err = durationField(v.Get("timeout")); err != nil {
			return ConnectionDescriptor{}, fmt.Errorf("%w: field \"timeout\": %w", ErrConfig, err)
		}
	}
	d.KnownHostsFile = v.GetString("known_hosts_file")
	d.InsecureIgnoreHostKey = v.GetBool("insecure_ignore_host_key")

	if err := d.Validate(); err != nil {
		return ConnectionDescriptor{}, err
	}
	return d.WithDefaults(), nil
}

func stringField(v *viper.Viper, key string) (string, error) {
	raw := v.Get(key)
	if raw == nil {
		return "", fmt.Errorf("%w: missing required field %q", ErrConfig, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q must be a string, got %T", ErrConfig, key, raw)
	}
	return s, nil
}

func portField(v *viper.Viper, key string) (int, error) {
	raw := v.Get(key)
	if raw == nil {
		return 0, fmt.Errorf("%w: missing required field %q", ErrConfig, key)
	}

	var port int
	switch p := raw.(type) {
	case float64:
		if p != math.Trunc(p) || p > math.MaxInt32 || p < math.MinInt32 {
			return 0, fmt.Errorf("%w: field %q must be an integer, got %v", ErrConfig, key, p)
		}
		port = int(p)
	case int:
		port = p
	case int64:
		port = int(p)
	case string:
		// Environment overrides arrive as strings.
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, fmt.Errorf("%w: field %q must be an integer, got %q", ErrConfig, key, p)
		}
		port = n
	default:
		return 0, fmt.Errorf("%w: field %q must be an integer, got %T", ErrConfig, key, raw)
	}

	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: field %q must be between 1 and 65535, got %d", ErrConfig, key, port)
	}
	return port, nil
}

// durationField accepts a Go duration string ("45s") or a number of seconds.
func durationField(raw any) (time.Duration, error) {
	var d time.Duration
	switch t := raw.(type) {
	case float64:
		d = time.Duration(t * float64(time.Second))
	case int:
		d = time.Duration(t) * time.Second
	case string:
		if secs, err := strconv.ParseFloat(t, 64); err == nil {
			d = time.Duration(secs * float64(time.Second))
			break
		}
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return 0, err
		}
		d = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// SaveConfig writes d to path as JSON, whatever the file extension, with
// owner-only permissions. An existing file is only replaced when overwrite
// is set.
func SaveConfig(path string, d ConnectionDescriptor, overwrite bool) error {
	if path == "" {
		path = DefaultConfigFile
	}
	if err := d.Validate(); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.Set("host", d.Host)
	v.Set("port", d.Port)
	v.Set("username", d.Username)
	v.Set("password", d.Password)
	if d.Timeout > 0 && d.Timeout != DefaultTimeout {
		v.Set("timeout", d.Timeout.String())
	}
	if d.KnownHostsFile != "" {
		v.Set("known_hosts_file", d.KnownHostsFile)
	}
	if d.InsecureIgnoreHostKey {
		v.Set("insecure_ignore_host_key", true)
	}

	// Always JSON whatever the extension; LoadConfig only reads JSON.
	flags := os.O_CREATE | os.O_TRUNC | os.O_WRONLY
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, configFileMode)
	if err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", ErrConfig, path, err)
	}
	// OpenFile only applies the mode on creation.
	if err := f.Chmod(configFileMode); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to restrict permissions of %s: %w", ErrConfig, path, err)
	}
	if err := v.WriteConfigTo(f); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to write %s: %w", ErrConfig, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", ErrConfig, path, err)
	}
	return nil
}
