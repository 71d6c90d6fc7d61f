package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractConfigurationDefaults(t *testing.T) {
	conf, err := ExtractConfiguration("")
	require.NoError(t, err)
	assert.Equal(t, DBTypeDefault, conf.DBType)
	assert.Equal(t, MbConnDefault, conf.MbConn)
	assert.Equal(t, ThresholdDefault, conf.Threshold)
	assert.Equal(t, IcDefault.Mode, conf.Ic.Mode)
}

func TestExtractConfigurationFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "conf.json")
	require.NoError(t, os.WriteFile(f, []byte(`{
		"dbtype": "mongodb",
		"dbconn": "mongodb://localhost:27017",
		"threshold": 6,
		"decimals": {"BTC": 8, "ETH": 18},
		"intercom": {"mode": 1, "id": 7, "port": "9100", "sitename": "mysite",
			"remoteId": 9, "remoteHost": "wallet.internal", "remotePort": "9101"}
	}`), 0o600))

	conf, err := ExtractConfiguration(f)
	require.NoError(t, err)
	assert.Equal(t, "mongodb", conf.DBType)
	assert.Equal(t, uint64(6), conf.Threshold)
	assert.Equal(t, uint32(7), conf.Ic.ID)
	assert.Equal(t, "wallet.internal", conf.Ic.RemoteHost)
	assert.Equal(t, int32(18), conf.Precision("ETH"))
	assert.Equal(t, DecimalsDefault, conf.Precision("DOGE"))
}

func TestExtractConfigurationEnv(t *testing.T) {
	t.Setenv("BROKER_DBTYPE", "postgresql")
	t.Setenv("BROKER_THRESHOLD", "12")
	t.Setenv("INTERCOM_MODE", "2")
	t.Setenv("INTERCOM_ID", "33")
	t.Setenv("INTERCOM_SITENAME", "prod")
	t.Setenv("INTERCOM_PASSPHRASE", "sekret")
	t.Setenv("SITE_INTERCOM_ID", "44")
	t.Setenv("SITE_INTERCOM_HOST", "10.0.0.5")
	t.Setenv("SITE_INTERCOM_PORT", "9200")

	conf, err := ExtractConfiguration("")
	require.NoError(t, err)
	assert.Equal(t, "postgresql", conf.DBType)
	assert.Equal(t, uint64(12), conf.Threshold)
	assert.Equal(t, ModeTLS, conf.Ic.Mode)
	assert.Equal(t, uint32(33), conf.Ic.ID)
	assert.Equal(t, "prod", conf.Ic.SiteName)
	assert.Equal(t, "sekret", conf.Ic.Passphrase)
	assert.Equal(t, uint32(44), conf.Ic.RemoteID)
	assert.Equal(t, "10.0.0.5", conf.Ic.RemoteHost)
	assert.Equal(t, "9200", conf.Ic.RemotePort)
}

func TestExtractConfigurationBadMode(t *testing.T) {
	t.Setenv("INTERCOM_MODE", "5")
	_, err := ExtractConfiguration("")
	assert.ErrorIs(t, err, ErrBadMode)
}
