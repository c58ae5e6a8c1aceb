package tlsutil

import (
	"fmt"

	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/pkg/acme"
)

// Server certificate modes
const (
	ModeManual = "manual"
	ModeACME   = "acme"
)

// ServerConfig configures TLS for the gateway listener
type ServerConfig struct {
	Enabled    bool   `json:"enabled"               yaml:"enabled"`
	Mode       string `json:"mode,omitempty"        yaml:"mode,omitempty"` // manual (default) or acme
	CertFile   string `json:"cert_file,omitempty"   yaml:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"    yaml:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty" yaml:"min_version,omitempty"` // "1.2" or "1.3"

	// ACME is used in acme mode. CertFile/KeyFile, when set, are the fallback.
	ACME acme.Config `json:"acme,omitempty" yaml:"acme,omitempty"`

	MTLS ServerMTLSConfig `json:"mtls,omitempty" yaml:"mtls,omitempty"`
}

// ServerMTLSConfig configures client certificate validation
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled"                       yaml:"enabled"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty"     yaml:"client_ca_files,omitempty"`
	RequireClientCert bool     `json:"require_client_cert,omitempty" yaml:"require_client_cert,omitempty"`
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty"  yaml:"allowed_client_cns,omitempty"`
}

// Validate checks the settings and fills defaults
func (c *ServerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Mode == "" {
		c.Mode = ModeManual
	}
	if err := validateVersion(c.MinVersion); err != nil {
		return err
	}

	switch c.Mode {
	case ModeManual:
		if c.CertFile == "" || c.KeyFile == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "ServerConfig", "Validate",
				"cert_file and key_file are required in manual mode")
		}
	case ModeACME:
		if err := c.ACME.Validate(); err != nil {
			return err
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServerConfig", "Validate",
			fmt.Sprintf("unknown TLS mode %q", c.Mode))
	}

	if c.MTLS.Enabled && len(c.MTLS.ClientCAFiles) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServerConfig", "Validate",
			"mtls requires at least one client_ca_file")
	}
	return nil
}

// ClientConfig configures TLS toward a store. The system CA pool is always
// trusted; CAFiles are added to it.
type ClientConfig struct {
	Enabled            bool     `json:"enabled"                        yaml:"enabled"`
	CAFiles            []string `json:"ca_files,omitempty"             yaml:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"` // development only
	MinVersion         string   `json:"min_version,omitempty"          yaml:"min_version,omitempty"`

	// Client certificate, for stores that require mTLS
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"  yaml:"key_file,omitempty"`
}

// Validate checks the settings
func (c *ClientConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validateVersion(c.MinVersion); err != nil {
		return err
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ClientConfig", "Validate",
			"cert_file and key_file must be set together")
	}
	return nil
}

func validateVersion(v string) error {
	switch v {
	case "", "1.2", "1.3":
		return nil
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tlsutil", "validateVersion",
			fmt.Sprintf("min_version must be 1.2 or 1.3, got %q", v))
	}
}
