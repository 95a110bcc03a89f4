package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core/notify"
	"github.com/projectsmartedu/SmartEducation-sub001/services/realtime"
)

type eventsApi struct {
	hub *realtime.Hub
}

func registerEventsAPI(g *echo.Group, jwt echo.MiddlewareFunc, hub *realtime.Hub) {
	if hub == nil {
		return
	}
	api := eventsApi{hub: hub}
	g.GET("/events", api.stream, queryTokenMiddleware, jwt)
}

// stream joins the caller's own room and one room per role family, then streams events until the client leaves.
func (api *eventsApi) stream(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	client := api.hub.NewClient(id.ID)
	api.hub.Join(client, notify.StudentRoom(id.ID))
	for _, name := range id.RoleNames() {
		api.hub.Join(client, notify.RoleRoom(name))
	}
	defer api.hub.Leave(client)

	return api.hub.Stream(ctx.Response(), ctx.Request(), client)
}
