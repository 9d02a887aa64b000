package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, "config_rs.json", `{
		"mysql": {"host": "localhost", "schema": "qsbot", "user": "qs", "pass": "secret"},
		"config": {"site": "wikidata", "sites": {"wikidata": {"api": "https://www.wikidata.org/w/api.php"}}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(1000), cfg.EditDelayMs)
	require.Equal(t, int64(5), cfg.SetMaxlag)
	require.Equal(t, 3306, cfg.MySQL.Port)

	api, err := cfg.SiteAPI("")
	require.NoError(t, err)
	require.Equal(t, "https://www.wikidata.org/w/api.php", api)
}

func TestSiteAPIUnknownSite(t *testing.T) {
	path := writeTemp(t, "config_rs.json", `{"mysql": {"host": "localhost", "schema": "qsbot", "user": "qs", "pass": "x"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = cfg.SiteAPI("commons")
	require.Error(t, err)
}

func TestLoadMergesSecondaryConfigFile(t *testing.T) {
	secondary := writeTemp(t, "bot.json", `{"site": "commons", "sites": {"commons": {"api": "https://commons.wikimedia.org/w/api.php"}}, "bot_config_file": "bot.ini"}`)
	main := writeTemp(t, "config_rs.json", `{
		"mysql": {"host": "localhost", "schema": "qsbot", "user": "qs", "pass": "x"},
		"config_file": "`+secondary+`"
	}`)

	cfg, err := Load(main)
	require.NoError(t, err)
	require.Equal(t, "commons", cfg.Bot.Site)
	require.Equal(t, "bot.ini", cfg.Bot.BotConfigFile)
}
