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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/nexus"
)

// SweepStuckSales runs a reconciliation pass on demand. 409 means another
// instance is sweeping right now.
func (a Api) SweepStuckSales(c *gin.Context) {
	requeued, err := a.nexus.SweepStuckSales(c.Request.Context())
	if errors.Is(err, nexus.ErrSweepInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logrus.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run reconciliation sweep"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requeued": requeued})
}
