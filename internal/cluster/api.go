package cluster

import (
	"maregistry/internal/registry"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// API 集群状态的HTTP接口
type API struct {
	cluster *Cluster
	service registry.RegistryService
	logger  *zap.Logger
}

// NewAPI 创建集群API
func NewAPI(cluster *Cluster, service registry.RegistryService, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		cluster: cluster,
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes 注册所有API路由
func (api *API) RegisterRoutes(router fiber.Router) {
	router.Get("/info", api.info)
	router.Get("/cluster", api.clusterInfo)
	router.Get("/leader", api.leader)

	api.logger.Info("集群API路由已注册")
}

// info 返回本机节点信息，版本号取当前全局版本号
func (api *API) info(c *fiber.Ctx) error {
	self := api.cluster.Self()
	if self == nil {
		return c.JSON(nil)
	}

	self.SetVersion(api.service.GlobalVersion())
	return c.JSON(self.Info())
}

// clusterInfo 返回所有集群节点信息
func (api *API) clusterInfo(c *fiber.Ctx) error {
	return c.JSON(api.cluster.Infos())
}

// leader 返回当前Leader节点信息，没有Leader时返回null
func (api *API) leader(c *fiber.Ctx) error {
	leader := api.cluster.Leader()
	if leader == nil {
		return c.JSON(nil)
	}
	return c.JSON(leader.Info())
}
