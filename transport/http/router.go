package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/feedgate-io/feedgate/core"
	"github.com/feedgate-io/feedgate/ports"
	"github.com/feedgate-io/feedgate/safeurl"
	"github.com/feedgate-io/feedgate/service"
)

// identityKey is the gin context key carrying the gate's decision: the
// verified identity downstream business handlers act as.
const identityKey = "feedgate.identity"

// Gateway bundles the gate services behind the HTTP surface.
type Gateway struct {
	Auth      *service.AuthService
	Payment   *service.PaymentService
	Limiter   *service.Limiter
	Admin     *service.AdminGuard
	Tokenizer ports.Tokenizer
	SafeURL   *safeurl.Validator
	Store     ports.Store

	MaxBodyBytes int64
	Log          *zap.Logger
}

// Route binds a path to its handler and gate policy. Policies are declared
// here, in one table, and dispatched by the router; handlers never check
// credentials themselves.
type Route struct {
	Method  string
	Path    string
	Policy  core.RoutePolicy
	Handler gin.HandlerFunc
}

// SetupRouter builds the gin engine with the full gate pipeline:
// CORS, size limit, rate limit, then the per-route policy gate.
func SetupRouter(g *Gateway, routes []Route) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"*"},
		ExposeHeaders:   []string{"Content-Type", "X-Payment-Response", "WWW-Authenticate"},
		MaxAge:          24 * time.Hour,
	}))
	router.Use(g.countRequests())

	// Outside the limited pipeline: liveness and metrics scraping.
	router.GET("/healthz", g.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	gated := router.Group("/", g.sizeLimit(), g.rateLimit())

	gated.POST("/v1/auth/nonce", g.handleNonce)
	gated.POST("/v1/auth/verify", g.handleVerify)

	for _, r := range routes {
		gated.Handle(r.Method, r.Path, g.guard(r), r.Handler)
	}

	return router
}

// guard returns the gate middleware for a route's declared policy.
func (g *Gateway) guard(r Route) gin.HandlerFunc {
	switch r.Policy.Kind {
	case core.PolicyWalletAuth:
		return g.walletAuth()
	case core.PolicyPaymentRequired:
		return g.paymentRequired(*r.Policy.Price)
	case core.PolicyAdminOnly:
		return g.adminOnly()
	default:
		return func(c *gin.Context) { c.Next() }
	}
}

// Identity returns the verified identity a gate stored for this request.
func Identity(c *gin.Context) (string, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
