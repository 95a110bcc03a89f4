package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core/knowledge"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
)

type progressApi struct {
	svc *progress.Service
	agg *knowledge.Aggregator
}

// StudentProgress is the staff view of one student.
type StudentProgress struct {
	StudentID    string             `json:"studentId"`
	Entries      []progress.Entry   `json:"entries"`
	KnowledgeMap knowledge.Overview `json:"knowledgeMap"`
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *progress.Service, agg *knowledge.Aggregator) {
	api := progressApi{svc: svc, agg: agg}

	pg := g.Group("/progress", jwt)
	pg.GET("", api.list, studentMiddleware())
	pg.GET("/stats", api.stats, studentMiddleware())
	pg.GET("/knowledge-map", api.knowledgeMap, studentMiddleware())
	pg.GET("/course/:courseId", api.course, studentMiddleware())
	pg.PUT("/:topicId", api.update, studentMiddleware())

	pg.GET("/student/:studentId", api.student, staffMiddleware())
	pg.GET("/class/:courseId", api.class, staffMiddleware())
}

// Handlers

func (api *progressApi) list(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	entries, err := api.svc.List(ctx.Request().Context(), id.ID, ctx.QueryParam("courseId"))
	if err != nil {
		return errors.Wrap(err, "listing progress")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *progressApi) stats(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), id.ID)
	if err != nil {
		return errors.Wrap(err, "computing progress stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *progressApi) knowledgeMap(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	courseID := ctx.QueryParam("courseId")
	if courseID != "" {
		if err = api.svc.CheckEnrolled(ctx.Request().Context(), id.ID, courseID); err != nil {
			return errors.Wrap(err, "checking enrollment")
		}
	}
	ov, err := api.agg.BuildOverview(ctx.Request().Context(), id.ID, courseID)
	if err != nil {
		return errors.Wrap(err, "building knowledge map")
	}
	return ctx.JSON(http.StatusOK, ov)
}

func (api *progressApi) course(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	courseID := ctx.Param("courseId")
	if err = api.svc.CheckEnrolled(ctx.Request().Context(), id.ID, courseID); err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	ov, err := api.agg.BuildOverview(ctx.Request().Context(), id.ID, courseID)
	if err != nil {
		return errors.Wrap(err, "building course knowledge map")
	}
	return ctx.JSON(http.StatusOK, ov)
}

func (api *progressApi) update(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	var data progress.Update
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to progress.Update")
	}
	entry, err := api.svc.Update(ctx.Request().Context(), id, ctx.Param("topicId"), data)
	if err != nil {
		return errors.Wrap(err, "updating progress")
	}
	return ctx.JSON(http.StatusOK, entry)
}

func (api *progressApi) student(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	studentID := ctx.Param("studentId")
	entries, err := api.svc.ListForStudent(ctx.Request().Context(), id, studentID)
	if err != nil {
		return errors.Wrap(err, "listing student progress")
	}
	ov, err := api.agg.BuildOverview(ctx.Request().Context(), studentID, "")
	if err != nil {
		return errors.Wrap(err, "building knowledge map")
	}
	return ctx.JSON(http.StatusOK, StudentProgress{StudentID: studentID, Entries: entries, KnowledgeMap: ov})
}

func (api *progressApi) class(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	cp, err := api.agg.ClassProgress(ctx.Request().Context(), id, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "building class progress")
	}
	return ctx.JSON(http.StatusOK, cp)
}
