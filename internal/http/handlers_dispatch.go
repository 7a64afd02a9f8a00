package http

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"gazeta/internal/model"
	"gazeta/internal/services"
)

func crawlHandler(c *fiber.Ctx) error {
	var reqBody CrawlRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&reqBody); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST_INVALID_JSON",
				Error:   "Bad request, malformed JSON",
			})
		}
	}

	spiderIDs, ok := parseCities(reqBody.Cities)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "'cities' must be \"all\" or a list of spider ids",
		})
	}

	return dispatch(c, services.DispatchRequest{
		JobType:        "manual",
		DateRange:      dateRangeOrZero(reqBody.DateRange),
		SpiderIDs:      spiderIDs,
		PlatformFilter: reqBody.Platform,
	})
}

func todayYesterdayHandler(c *fiber.Ctx) error {
	var reqBody TodayYesterdayRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&reqBody); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST_INVALID_JSON",
				Error:   "Bad request, malformed JSON",
			})
		}
	}

	svc := c.Locals("dispatch").(*services.DispatchService)
	res, err := svc.TodayYesterday(c.Context(), reqBody.Platform)

	status, resp := buildDispatchResponse(res, err)
	if err == nil {
		dr := res.DateRange
		resp.DateRange = &dr
		resp.EstimatedTimeMinutes = estimateMinutes(res.Cities)
	}
	return c.Status(status).JSON(resp)
}

func crawlCitiesHandler(c *fiber.Ctx) error {
	var reqBody CrawlCitiesRequest
	if err := c.BodyParser(&reqBody); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}
	if len(reqBody.Cities) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Missing required field 'cities'",
		})
	}

	return dispatch(c, services.DispatchRequest{
		JobType:        "cities",
		DateRange:      dateRangeOrZero(reqBody.DateRange),
		SpiderIDs:      reqBody.Cities,
		PlatformFilter: reqBody.Platform,
	})
}

func dispatch(c *fiber.Ctx, req services.DispatchRequest) error {
	svc := c.Locals("dispatch").(*services.DispatchService)
	res, err := svc.Dispatch(c.Context(), req)
	return respondDispatch(c, res, err)
}

func respondDispatch(c *fiber.Ctx, res services.DispatchResult, err error) error {
	status, resp := buildDispatchResponse(res, err)
	return c.Status(status).JSON(resp)
}

// buildDispatchResponse maps the fan-out outcome onto HTTP semantics:
// 200 all enqueued, 207 partial, 400 no valid cities, 500 nothing
// enqueued at all.
func buildDispatchResponse(res services.DispatchResult, err error) (int, DispatchResponse) {
	if errors.Is(err, services.ErrNoCities) {
		return fiber.StatusBadRequest, DispatchResponse{
			Success:       false,
			Code:          "NO_VALID_CITIES",
			Error:         err.Error(),
			InvalidCities: res.Invalid,
		}
	}
	if err != nil {
		return http.StatusInternalServerError, DispatchResponse{
			Success: false,
			Code:    "DISPATCH_FAILED",
			Error:   err.Error(),
		}
	}

	resp := DispatchResponse{
		Success:       res.Enqueued > 0,
		CrawlJobID:    res.CrawlJobID.String(),
		Cities:        res.Cities,
		TasksEnqueued: res.Enqueued,
		FailedCount:   res.Failed,
		InvalidCities: res.Invalid,
	}

	status := http.StatusOK
	switch {
	case res.Enqueued == 0:
		status = http.StatusInternalServerError
		resp.Code = "ENQUEUE_FAILED"
		resp.Error = "no crawl messages could be enqueued"
	case res.Failed > 0:
		status = http.StatusMultiStatus
	}
	return status, resp
}

// estimateMinutes is a coarse duration estimate for a scheduled run,
// assuming roughly ten cities crawled per minute.
func estimateMinutes(cities int) int {
	minutes := (cities + 9) / 10
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// parseCities accepts "all", nil, or a list of spider id strings.
func parseCities(v any) ([]string, bool) {
	switch cities := v.(type) {
	case nil:
		return nil, true
	case string:
		if cities == "all" || cities == "" {
			return nil, true
		}
		return []string{cities}, true
	case []any:
		out := make([]string, 0, len(cities))
		for _, item := range cities {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func dateRangeOrZero(dr *model.DateRange) model.DateRange {
	if dr == nil {
		return model.DateRange{}
	}
	return *dr
}
