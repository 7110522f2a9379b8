package lark

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	larksdk "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larktask "github.com/larksuite/oapi-sdk-go/v3/service/task/v2"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/larkalarm/pkg/model"
)

const (
	DefaultBaseURL = "https://open.larksuite.com" // larksdk.LarkBaseUrl
	taskListType   = "my_tasks"
	pageSize       = 50

	// All-day tasks alarm against this local time on their due date.
	allDayHour   = 17
	allDayMinute = 30
)

// Client lists the caller's incomplete Lark tasks with a user access token
// taken from tokens on every page.
type Client struct {
	api    *larksdk.Client
	tokens oauth2.TokenSource
	logger *log.Logger
	loc    *time.Location
}

// NewClient creates a task client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, tokens oauth2.TokenSource, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.Default()
	}
	api := larksdk.NewClient("", "",
		larksdk.WithOpenBaseUrl(strings.TrimRight(baseURL, "/")),
		larksdk.WithEnableTokenCache(false),
		larksdk.WithLogger(sdkLogger{logger}),
		larksdk.WithLogLevel(larkcore.LogLevelWarn),
	)
	return &Client{
		api:    api,
		tokens: tokens,
		logger: logger,
		loc:    time.Local,
	}
}

// FetchTasks pages through every incomplete task owned by the caller. A
// failure on any page aborts the whole fetch.
func (c *Client) FetchTasks(ctx context.Context) ([]model.Task, error) {
	c.logger.Debug("syncing tasks from Lark")

	var items []*larktask.Task
	pageToken := ""
	for {
		data, err := c.fetchPage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		items = append(items, data.Items...)
		if !larkcore.BoolValue(data.HasMore) {
			break
		}
		pageToken = larkcore.StringValue(data.PageToken)
	}

	tasks := make([]model.Task, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		task, err := c.convert(item)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (c *Client) fetchPage(ctx context.Context, pageToken string) (*larktask.ListTaskRespData, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	builder := larktask.NewListTaskReqBuilder().
		PageSize(pageSize).
		Completed(false).
		Type(taskListType)
	if pageToken != "" {
		builder = builder.PageToken(pageToken)
	}

	resp, err := c.api.Task.V2.Task.List(ctx, builder.Build(), larkcore.WithUserAccessToken(tok.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if !resp.Success() {
		return nil, &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil {
		return &larktask.ListTaskRespData{}, nil
	}
	return resp.Data, nil
}

func (c *Client) convert(item *larktask.Task) (model.Task, error) {
	task := model.Task{
		GUID:    larkcore.StringValue(item.Guid),
		Summary: larkcore.StringValue(item.Summary),
		URL:     larkcore.StringValue(item.Url),
	}
	if item.Due == nil {
		return task, nil
	}
	task.IsAllDay = larkcore.BoolValue(item.Due.IsAllDay)
	due, ok, err := parseMillis(larkcore.StringValue(item.Due.Timestamp))
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s: %w", task.GUID, err)
	}
	if !ok {
		return task, nil
	}
	if task.IsAllDay {
		due = AllDayDue(due, c.loc)
	}
	task.Due = &due
	return task, nil
}

// parseMillis reads a Lark timestamp, epoch milliseconds sent as a string.
// Empty and zero values mean no timestamp.
func parseMillis(s string) (time.Time, bool, error) {
	if s == "" || s == "0" {
		return time.Time{}, false, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse Lark timestamp '%s': %w", s, err)
	}
	return time.UnixMilli(ms), true, nil
}

// AllDayDue moves t to the fixed all-day alarm time on the same calendar
// date in loc.
func AllDayDue(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, allDayHour, allDayMinute, 0, 0, loc)
}

// sdkLogger routes the SDK's own logging into the daemon logger.
type sdkLogger struct {
	logger *log.Logger
}

func (l sdkLogger) Debug(_ context.Context, args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l sdkLogger) Info(_ context.Context, args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l sdkLogger) Warn(_ context.Context, args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l sdkLogger) Error(_ context.Context, args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
