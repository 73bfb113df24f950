package registry

import (
	"strings"

	"maregistry/pkg/common"
	"maregistry/pkg/utils"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ClusterState 写入准入所需的集群状态查询接口
// 为nil表示单机模式，所有写入直接放行
type ClusterState interface {
	// IsSelfLeader 本机是否为Leader
	IsSelfLeader() bool

	// LeaderURL 当前Leader的URL，没有Leader时返回空串
	LeaderURL() string
}

// API 注册中心的HTTP接口
// 写操作只在Leader上受理，Follower返回403并携带Leader地址；
// 读操作任意节点都可受理
type API struct {
	service  RegistryService
	cluster  ClusterState
	validate *validator.Validate
	trans    ut.Translator
	logger   *zap.Logger
}

// NewAPI 创建注册中心API
func NewAPI(service RegistryService, cluster ClusterState, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}

	validate, trans := utils.NewValidator()

	return &API{
		service:  service,
		cluster:  cluster,
		validate: validate,
		trans:    trans,
		logger:   logger,
	}
}

// RegisterRoutes 注册所有API路由
func (api *API) RegisterRoutes(router fiber.Router) {
	router.Post("/reg", api.register)
	router.Post("/unreg", api.unregister)
	router.Get("/findAll", api.findAll)
	router.Post("/renew", api.renew)
	router.Post("/renews", api.renews)
	router.Post("/version", api.version)
	router.Post("/versions", api.versions)
	router.Get("/snapshot", api.snapshot)

	api.logger.Info("注册中心API路由已注册")
}

// instanceRequest 实例注册/续约请求体
type instanceRequest struct {
	Scheme     string            `json:"scheme" validate:"required"`
	Host       string            `json:"host" validate:"required"`
	Port       int               `json:"port" validate:"required,gt=0,lte=65535"`
	Context    string            `json:"context"`
	Parameters map[string]string `json:"parameters"`
}

// toInstance 转换为实例元数据
func (r *instanceRequest) toInstance() *InstanceMeta {
	instance := NewInstanceMeta(r.Scheme, r.Host, r.Port, r.Context)
	if r.Parameters != nil {
		instance.Parameters = r.Parameters
	}
	return instance
}

// parseInstance 解析并校验请求体中的实例
func (api *API) parseInstance(c *fiber.Ctx) (*InstanceMeta, *common.AppError) {
	var request instanceRequest
	if err := c.BodyParser(&request); err != nil {
		return nil, common.NewValidationError("解析请求体失败", err)
	}

	if msg, err := utils.ValidateStruct(api.validate, api.trans, &request); err != nil {
		return nil, common.NewValidationError(msg, err)
	}

	return request.toInstance(), nil
}

// requireService 解析service查询参数
func requireService(c *fiber.Ctx) (string, *common.AppError) {
	service := c.Query("service")
	if service == "" {
		return "", common.NewValidationError("service参数不能为空", nil)
	}
	return service, nil
}

// requireServices 解析逗号分隔的services查询参数
func requireServices(c *fiber.Ctx) ([]string, *common.AppError) {
	raw := c.Query("services")
	if raw == "" {
		return nil, common.NewValidationError("services参数不能为空", nil)
	}

	var services []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			services = append(services, s)
		}
	}
	if len(services) == 0 {
		return nil, common.NewValidationError("services参数不能为空", nil)
	}
	return services, nil
}

// checkLeader 写入准入检查，本机不是Leader时拒绝
func (api *API) checkLeader() *common.AppError {
	if api.cluster == nil {
		return nil
	}
	if api.cluster.IsSelfLeader() {
		return nil
	}

	leader := api.cluster.LeaderURL()
	if leader == "" {
		leader = "unknown"
	}
	return common.NewForbiddenError("当前节点不是Leader，写操作被拒绝", nil).
		WithField("leader", leader)
}

// fail 输出错误响应
func fail(c *fiber.Ctx, appErr *common.AppError) error {
	return c.Status(appErr.StatusCode()).JSON(appErr.Response())
}

// register 注册服务实例
func (api *API) register(c *fiber.Ctx) error {
	if appErr := api.checkLeader(); appErr != nil {
		return fail(c, appErr)
	}

	service, appErr := requireService(c)
	if appErr != nil {
		return fail(c, appErr)
	}

	instance, appErr := api.parseInstance(c)
	if appErr != nil {
		return fail(c, appErr)
	}

	return c.JSON(api.service.Register(service, instance))
}

// unregister 注销服务实例
func (api *API) unregister(c *fiber.Ctx) error {
	if appErr := api.checkLeader(); appErr != nil {
		return fail(c, appErr)
	}

	service, appErr := requireService(c)
	if appErr != nil {
		return fail(c, appErr)
	}

	instance, appErr := api.parseInstance(c)
	if appErr != nil {
		return fail(c, appErr)
	}

	return c.JSON(api.service.Unregister(service, instance))
}

// findAll 获取服务的全部实例
// 服务不存在和存在但为空都渲染为空列表
func (api *API) findAll(c *fiber.Ctx) error {
	service, appErr := requireService(c)
	if appErr != nil {
		return fail(c, appErr)
	}

	instances := api.service.GetAllInstances(service)
	if instances == nil {
		instances = []*InstanceMeta{}
	}
	return c.JSON(instances)
}

// renew 心跳续约单个服务
func (api *API) renew(c *fiber.Ctx) error {
	if appErr := api.checkLeader(); appErr != nil {
		return fail(c, appErr)
	}

	service, appErr := requireService(c)
	if appErr != nil {
		return fail(c, appErr)
	}

	instance, appErr := api.parseInstance(c)
	if appErr != nil {
		return fail(c, appErr)
	}

	return c.JSON(api.service.Renew(service, instance))
}

// renews 批量心跳续约
func (api *API) renews(c *fiber.Ctx) error {
	if appErr := api.checkLeader(); appErr != nil {
		return fail(c, appErr)
	}

	services, appErr := requireServices(c)
	if appErr != nil {
		return fail(c, appErr)
	}

	instance, appErr := api.parseInstance(c)
	if appErr != nil {
		return fail(c, appErr)
	}

	return c.JSON(api.service.Renews(services, instance))
}

// version 获取服务版本号
func (api *API) version(c *fiber.Ctx) error {
	service, appErr := requireService(c)
	if appErr != nil {
		return fail(c, appErr)
	}

	return c.JSON(api.service.Version(service))
}

// versions 批量获取服务版本号
func (api *API) versions(c *fiber.Ctx) error {
	services, appErr := requireServices(c)
	if appErr != nil {
		return fail(c, appErr)
	}

	return c.JSON(api.service.Versions(services))
}

// snapshot 导出当前数据快照，Follower的复制器从这里拉取
func (api *API) snapshot(c *fiber.Ctx) error {
	return c.JSON(api.service.Snapshot())
}
