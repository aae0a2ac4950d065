package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/eventcal/internal/config"
	"github.com/nhle/eventcal/internal/model"
	"github.com/nhle/eventcal/internal/relocate"
	"github.com/nhle/eventcal/internal/store"
	"github.com/nhle/eventcal/tests/testutil"
)

type fakeRelocator struct {
	calls []string
	err   error
}

func (f *fakeRelocator) Relocate(_ context.Context, newPath string) error {
	f.calls = append(f.calls, newPath)
	return f.err
}

func setupService(t *testing.T) (*Service, *fakeRelocator, *config.Store) {
	t.Helper()

	_, events, tags := testutil.NewTestRepositories(t)
	configs := config.NewStore(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, configs.Write(&config.Config{StoragePath: "/var/lib/eventcal"}))

	reloc := &fakeRelocator{}
	svc := New(events, tags, configs, reloc, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return svc, reloc, configs
}

func call(t *testing.T, svc *Service, command string, args any) Response {
	t.Helper()

	req := Request{ID: "req-1", Command: command}
	if args != nil {
		raw, err := json.Marshal(args)
		require.NoError(t, err)
		req.Args = raw
	}
	resp := svc.Dispatch(context.Background(), req)
	assert.Equal(t, "req-1", resp.ID)
	return resp
}

// decodeResult round-trips a result through JSON the way the UI sees it.
func decodeResult(t *testing.T, resp Response, v any) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func requireCode(t *testing.T, resp Response, code string) {
	t.Helper()
	require.NotNil(t, resp.Error, "expected %s, got result %+v", code, resp.Result)
	assert.Equal(t, code, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.Message)
}

func TestDispatch_EventLifecycle(t *testing.T) {
	svc, _, _ := setupService(t)

	resp := call(t, svc, AddEvent, map[string]any{
		"id":           "evt-1",
		"title":        "Planning",
		"start":        "2024-01-10T09:00",
		"end":          "2024-01-10T11:00",
		"urgencyTagId": 2,
		"typeTagIds":   []int64{1, 2},
	})
	var added struct{ ID string }
	decodeResult(t, resp, &added)
	assert.Equal(t, "evt-1", added.ID)

	var day []model.Event
	decodeResult(t, call(t, svc, GetEventsByDateRange, map[string]string{"start": "2024-01-10", "end": "2024-01-10"}), &day)
	require.Len(t, day, 1)
	assert.Equal(t, "Planning", day[0].Title)

	decodeResult(t, call(t, svc, UpdateEvent, map[string]any{
		"id":         "evt-1",
		"title":      "Planning (moved)",
		"start":      "2024-01-11T09:00:00+08:00",
		"end":        "2024-01-11T10:00:00+08:00",
		"typeTagIds": []int64{3},
	}), &struct{}{})

	var got model.Event
	decodeResult(t, call(t, svc, GetEvent, map[string]string{"id": "evt-1"}), &got)
	assert.Equal(t, "Planning (moved)", got.Title)

	var tags model.EventTags
	decodeResult(t, call(t, svc, GetEventTags, map[string]string{"eventId": "evt-1"}), &tags)
	require.NotNil(t, tags.UrgencyTag)
	assert.Equal(t, model.DefaultUrgencyTagID, tags.UrgencyTag.ID)
	require.Len(t, tags.TypeTags, 1)
	assert.Equal(t, int64(3), tags.TypeTags[0].ID)

	decodeResult(t, call(t, svc, DeleteEvent, map[string]string{"id": "evt-1"}), &struct{}{})
	requireCode(t, call(t, svc, GetEvent, map[string]string{"id": "evt-1"}), CodeNotFound)

	var all []model.Event
	decodeResult(t, call(t, svc, GetAllEvents, nil), &all)
	assert.Empty(t, all)
}

func TestDispatch_AddEventAssignsID(t *testing.T) {
	svc, _, _ := setupService(t)

	var added struct{ ID string }
	decodeResult(t, call(t, svc, AddEvent, map[string]any{
		"title": "No id",
		"start": "2024-01-10",
		"end":   "2024-01-11",
	}), &added)
	assert.Len(t, added.ID, 36)

	var all []model.Event
	decodeResult(t, call(t, svc, GetAllEvents, nil), &all)
	require.Len(t, all, 1)
	assert.Equal(t, added.ID, all[0].ID)
}

func TestDispatch_ErrorCodes(t *testing.T) {
	svc, _, _ := setupService(t)

	event := map[string]any{"id": "e", "title": "T", "start": "2024-01-10T09:00", "end": "2024-01-10T10:00"}
	decodeResult(t, call(t, svc, AddEvent, event), &struct{}{})

	requireCode(t, call(t, svc, AddEvent, event), CodeDuplicateID)
	requireCode(t, call(t, svc, SetEventTags, map[string]any{"eventId": "e", "urgencyTagId": 9}), CodeInvalidReference)
	requireCode(t, call(t, svc, SetEventTags, map[string]any{"eventId": "ghost"}), CodeInvalidReference)
	requireCode(t, call(t, svc, UpdateEvent, map[string]any{"id": "ghost", "title": "T", "start": "2024-01-10", "end": "2024-01-10"}), CodeNotFound)
	requireCode(t, call(t, svc, AddEvent, map[string]any{"title": "T", "start": "tomorrow", "end": "2024-01-10"}), CodeInvalidArgument)
	requireCode(t, call(t, svc, GetEventsByDateRange, nil), CodeInvalidArgument)
	requireCode(t, call(t, svc, DeleteUrgencyTag, map[string]int64{"id": 1}), CodeInvalidReference)
	requireCode(t, call(t, svc, DeleteTypeTag, map[string]int64{"id": 404}), CodeNotFound)
	requireCode(t, call(t, svc, "drop-tables", nil), CodeUnknownCommand)

	resp := svc.Dispatch(context.Background(), Request{ID: "req-1", Command: GetEvent, Args: json.RawMessage(`{"id":`)})
	requireCode(t, resp, CodeInvalidArgument)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", store.ErrStorageUnavailable), CodeStorageUnavailable},
		{fmt.Errorf("%w: copy: %w", relocate.ErrRelocationFailed, store.ErrStorageUnavailable), CodeRelocationFailed},
		{store.ErrStorageBusy, CodeStorageBusy},
		{store.ErrDuplicateID, CodeDuplicateID},
		{errors.New("something odd"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err), tt.err.Error())
	}
}

func TestDispatch_TagCommands(t *testing.T) {
	svc, _, _ := setupService(t)

	var urgencies, types []model.Tag
	decodeResult(t, call(t, svc, GetAllUrgencyTags, nil), &urgencies)
	decodeResult(t, call(t, svc, GetAllTypeTags, nil), &types)
	assert.Len(t, urgencies, 3)
	assert.Len(t, types, 4)

	var created model.Tag
	decodeResult(t, call(t, svc, CreateTypeTag, map[string]string{"tag_name": "Gym", "icon_name": "dumbbell"}), &created)
	assert.Equal(t, int64(5), created.ID)
	assert.Equal(t, model.DefaultTagColor, created.Color)

	decodeResult(t, call(t, svc, UpdateTypeTag, map[string]any{"id": created.ID, "tag_name": "Sport", "icon_name": "dumbbell"}), &struct{}{})

	var urgent model.Tag
	decodeResult(t, call(t, svc, CreateUrgencyTag, map[string]string{"tag_name": "Urgent", "icon_name": "bolt", "color": "#ff0000"}), &urgent)
	decodeResult(t, call(t, svc, UpdateUrgencyTag, map[string]any{"id": urgent.ID, "tag_name": "Now", "icon_name": "bolt"}), &struct{}{})

	decodeResult(t, call(t, svc, AddEvent, map[string]any{
		"id": "e", "title": "T", "start": "2024-01-10T09:00", "end": "2024-01-10T10:00",
		"urgencyTagId": urgent.ID, "typeTagIds": []int64{created.ID},
	}), &struct{}{})
	decodeResult(t, call(t, svc, SetEventTags, map[string]any{
		"eventId": "e", "urgencyTagId": urgent.ID, "typeTagIds": []int64{created.ID, 1},
	}), &struct{}{})

	var byID map[string]model.EventTags
	decodeResult(t, call(t, svc, GetEventsTagsByIDs, map[string][]string{"eventIds": {"e", "missing"}}), &byID)
	assert.Equal(t, "Now", byID["e"].UrgencyTag.Name)
	assert.Len(t, byID["e"].TypeTags, 2)
	assert.Nil(t, byID["missing"].UrgencyTag)
	assert.NotNil(t, byID["missing"].TypeTags)

	decodeResult(t, call(t, svc, DeleteUrgencyTag, map[string]int64{"id": urgent.ID}), &struct{}{})
	decodeResult(t, call(t, svc, DeleteTypeTag, map[string]int64{"id": created.ID}), &struct{}{})

	var tags model.EventTags
	decodeResult(t, call(t, svc, GetEventTags, map[string]string{"eventId": "e"}), &tags)
	assert.Equal(t, model.DefaultUrgencyTagID, tags.UrgencyTag.ID)
	require.Len(t, tags.TypeTags, 1)
	assert.Equal(t, int64(1), tags.TypeTags[0].ID)
}

func TestDispatch_GetEventTagsWithoutAssociations(t *testing.T) {
	svc, _, _ := setupService(t)

	resp := call(t, svc, GetEventTags, map[string]string{"eventId": "nobody"})
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"urgencyTag":null,"typeTags":[]}`, string(raw))
}

func TestDispatch_DBPath(t *testing.T) {
	svc, reloc, _ := setupService(t)

	var path string
	decodeResult(t, call(t, svc, GetDBPath, nil), &path)
	assert.Equal(t, "/var/lib/eventcal", path)

	var ok PathUpdate
	decodeResult(t, call(t, svc, UpdateDBPath, map[string]string{"path": "/mnt/usb"}), &ok)
	assert.True(t, ok.Success)
	assert.Empty(t, ok.Error)
	assert.Equal(t, []string{"/mnt/usb"}, reloc.calls)

	reloc.err = fmt.Errorf("%w: copying: disk full", relocate.ErrRelocationFailed)
	var failed PathUpdate
	decodeResult(t, call(t, svc, UpdateDBPath, map[string]string{"path": "/mnt/full"}), &failed)
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Error, "disk full")
}

func TestDispatch_ExportICS(t *testing.T) {
	svc, _, _ := setupService(t)

	decodeResult(t, call(t, svc, AddEvent, map[string]any{
		"id": "ics-1", "title": "Exam", "start": "2024-01-10T09:00", "end": "2024-01-10T11:00",
		"urgencyTagId": 3, "typeTagIds": []int64{3},
	}), &struct{}{})
	decodeResult(t, call(t, svc, AddEvent, map[string]any{
		"id": "ics-2", "title": "Later", "start": "2024-03-01T09:00", "end": "2024-03-01T10:00",
	}), &struct{}{})

	var all string
	decodeResult(t, call(t, svc, ExportICS, nil), &all)
	assert.Contains(t, all, "UID:ics-1")
	assert.Contains(t, all, "UID:ics-2")
	assert.Contains(t, all, "CATEGORIES:Academic")

	var january string
	decodeResult(t, call(t, svc, ExportICS, map[string]string{"start": "2024-01-01", "end": "2024-01-31"}), &january)
	assert.Contains(t, january, "UID:ics-1")
	assert.NotContains(t, january, "UID:ics-2")
}

func TestServe(t *testing.T) {
	svc, _, _ := setupService(t)

	in := strings.Join([]string{
		`{"id":"1","command":"get-all-type-tags"}`,
		``,
		`not json`,
		`{"id":"2","command":"add-event","args":{"id":"s","title":"Served","start":"2024-01-10","end":"2024-01-11"}}`,
		`{"id":"3","command":"nope"}`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, svc.Serve(context.Background(), strings.NewReader(in), &out))

	byID := map[string]Response{}
	var malformed int
	dec := json.NewDecoder(&out)
	for dec.More() {
		var resp Response
		require.NoError(t, dec.Decode(&resp))
		if resp.ID == "" {
			malformed++
			continue
		}
		byID[resp.ID] = resp
	}

	assert.Equal(t, 1, malformed)
	require.Len(t, byID, 3)
	assert.Nil(t, byID["1"].Error)
	assert.Nil(t, byID["2"].Error)
	require.NotNil(t, byID["3"].Error)
	assert.Equal(t, CodeUnknownCommand, byID["3"].Error.Code)
}

func TestServe_StopsOnCancel(t *testing.T) {
	svc, _, _ := setupService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, w := io.Pipe()
	defer w.Close()

	var out bytes.Buffer
	assert.NoError(t, svc.Serve(ctx, r, &out))
	assert.Zero(t, out.Len())
}
