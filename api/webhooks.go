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
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/nexus"
	model2 "github.com/jerry-enebeli/nexus/api/model"
	"github.com/jerry-enebeli/nexus/config"
)

// VerifyWhatsAppWebhook answers the subscription handshake by echoing the
// challenge when the verify token matches.
func (a Api) VerifyWhatsAppWebhook(c *gin.Context) {
	var verify model2.VerifyWebhook
	if err := c.ShouldBindQuery(&verify); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "configuration unavailable"})
		return
	}

	if err := verify.ValidateVerifyWebhook(conf.WhatsApp.VerifyToken); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	c.String(http.StatusOK, verify.Challenge)
}

// ReceiveWhatsAppWebhook confirms the sender's latest order awaiting payment
// when a message carries a confirmation keyword. The provider retries anything
// but a 200, so every outcome is acknowledged.
func (a Api) ReceiveWhatsAppWebhook(c *gin.Context) {
	var hook model2.WhatsAppWebhook
	if err := c.ShouldBindJSON(&hook); err != nil {
		logrus.WithError(err).Warn("ignoring malformed whatsapp webhook")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	confirmed := make([]string, 0)
	for _, message := range hook.TextMessages() {
		if !nexus.IsConfirmationMessage(message.Text.Body) {
			continue
		}
		log := logrus.WithFields(logrus.Fields{"from": message.From, "message_id": message.ID})
		saleID, won, err := a.nexus.ConfirmLatestByPhone(c.Request.Context(), message.From)
		if err != nil {
			log.WithError(err).Warn("could not confirm sale from whatsapp message")
			continue
		}
		if won {
			log.WithField("sale_id", saleID).Info("sale confirmed over whatsapp")
			confirmed = append(confirmed, saleID)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "received", "confirmed": confirmed})
}
