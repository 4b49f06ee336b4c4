package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/kainlite/gitops-operator/internal/domain/handlers"
	"github.com/kainlite/gitops-operator/internal/domain/models"
)

func main() {
	reconcileHandler, err := handlers.NewReconcileHandler()

	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	err = start(reconcileHandler)

	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func start(reconcileHandler *handlers.ReconcileHandler) error {
	gin.DisableConsoleColor()
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "up")
	})

	// The batch always returns 200, the body enumerates the per-deployment
	// outcomes.
	r.GET("/reconcile", func(c *gin.Context) {
		results := reconcileHandler.Reconcile(c.Request.Context())
		c.JSON(http.StatusOK, results)
	})

	r.GET("/debug", func(c *gin.Context) {
		entries, err := reconcileHandler.Debug(c.Request.Context())

		if err != nil {
			c.JSON(http.StatusOK, models.ErrorResponse{
				Status:  "Error",
				Message: err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, entries)
	})

	return r.Run()
}
