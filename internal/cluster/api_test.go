package cluster

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"maregistry/internal/registry"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPISetup(t *testing.T) (*fiber.App, *Cluster, registry.RegistryService) {
	t.Helper()

	c := NewCluster(
		[]string{"http://10.0.0.1:8484", "http://10.0.0.2:8484"},
		"",
		fixedIP("10.0.0.1"),
	)
	service := registry.NewMemoryRegistry()

	app := fiber.New()
	NewAPI(c, service, nil).RegisterRoutes(app)

	return app, c, service
}

func get(t *testing.T, app *fiber.App, target string) []byte {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

func TestInfoEndpoint(t *testing.T) {
	app, c, service := newAPISetup(t)

	// /info的版本号反映当前全局版本号
	service.Renew("S", registry.NewHTTPInstance("localhost", 8080))

	var info ServerInfo
	require.NoError(t, json.Unmarshal(get(t, app, "/info"), &info))

	assert.Equal(t, c.Self().URL(), info.URL)
	assert.True(t, info.Status)
	assert.Equal(t, int64(1), info.Version)
}

func TestClusterEndpoint(t *testing.T) {
	app, _, _ := newAPISetup(t)

	var infos []ServerInfo
	require.NoError(t, json.Unmarshal(get(t, app, "/cluster"), &infos))
	assert.Len(t, infos, 2)
}

func TestLeaderEndpoint(t *testing.T) {
	app, c, _ := newAPISetup(t)

	t.Run("无Leader时返回null", func(t *testing.T) {
		assert.JSONEq(t, "null", string(get(t, app, "/leader")))
	})

	t.Run("有Leader时返回Leader信息", func(t *testing.T) {
		c.SetLeader(c.ByURL("http://10.0.0.2:8484"))

		var info ServerInfo
		require.NoError(t, json.Unmarshal(get(t, app, "/leader"), &info))
		assert.Equal(t, "http://10.0.0.2:8484", info.URL)
		assert.True(t, info.Leader)
	})
}
