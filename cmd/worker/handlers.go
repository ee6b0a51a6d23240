package main

import (
	"github.com/hibiken/asynq"

	catalogJob "household-catalog/internal/domains/catalog/job"
	"household-catalog/internal/shared"
	"household-catalog/pkg/container"
)

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	reconcile   *catalogJob.ReconcileHandler
	recalculate *catalogJob.RecalculateHandler
}

// initializeHandlers creates all job handlers with their dependencies
func initializeHandlers(c *container.Container) *HandlerRegistry {
	return &HandlerRegistry{
		reconcile:   catalogJob.NewReconcileHandler(c.Reconciler, c.Snapshot),
		recalculate: catalogJob.NewRecalculateHandler(c.Recalculator, c.Snapshot),
	}
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(shared.TypeCatalogReconcile, h.reconcile.ProcessTask)
	mux.HandleFunc(shared.TypeCatalogRecalculate, h.recalculate.ProcessTask)
}
