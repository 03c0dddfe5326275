/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jerry-enebeli/nexus"
	"github.com/jerry-enebeli/nexus/api/middleware"
	"github.com/jerry-enebeli/nexus/config"
)

type Api struct {
	nexus  *nexus.Nexus
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/checkout", a.Checkout)
	router.GET("/sales/:id", a.GetSale)

	router.GET("/webhooks/whatsapp", a.VerifyWhatsAppWebhook)
	router.POST("/webhooks/whatsapp", a.ReceiveWhatsAppWebhook)

	router.POST("/reconciliation/sweep", a.SweepStuckSales)
	return a.router
}

func NewAPI(n *nexus.Nexus) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{nexus: n, router: r}
}
