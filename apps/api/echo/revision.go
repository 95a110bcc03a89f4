package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
)

type revisionApi struct {
	svc *revision.Service
}

func registerRevisionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *revision.Service) {
	api := revisionApi{svc: svc}

	rg := g.Group("/revisions", jwt)
	rg.GET("", api.list, studentMiddleware())
	rg.GET("/stats", api.stats, studentMiddleware())
	rg.POST("", api.create, staffMiddleware())
	rg.GET("/student/:studentId", api.listForStudent, staffMiddleware())

	// detail endpoints
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id/complete", api.complete, studentMiddleware())
	rg.PUT("/:id/skip", api.skip, studentMiddleware())
	rg.DELETE("/:id", api.destroy, staffMiddleware())
}

// Handlers

func (api *revisionApi) list(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	var filter revision.ListFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to revision.ListFilter")
	}
	recs, err := api.svc.List(ctx.Request().Context(), id.ID, filter)
	if err != nil {
		return errors.Wrap(err, "listing revisions")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *revisionApi) stats(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), id.ID)
	if err != nil {
		return errors.Wrap(err, "computing revision stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *revisionApi) create(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	var data revision.NewRevision
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to revision.NewRevision")
	}
	recs, err := api.svc.Create(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "creating revisions")
	}
	return ctx.JSON(http.StatusCreated, recs)
}

func (api *revisionApi) listForStudent(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	recs, err := api.svc.ListForStudent(ctx.Request().Context(), id, ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "listing student revisions")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *revisionApi) retrieve(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	rec, err := api.svc.Get(ctx.Request().Context(), id, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting revision")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *revisionApi) complete(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	var data revision.Review
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to revision.Review")
	}
	rec, err := api.svc.Complete(ctx.Request().Context(), id, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "completing revision")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *revisionApi) skip(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	rec, err := api.svc.Skip(ctx.Request().Context(), id, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "skipping revision")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *revisionApi) destroy(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	if err = api.svc.Delete(ctx.Request().Context(), id, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting revision")
	}
	return ctx.NoContent(http.StatusNoContent)
}
