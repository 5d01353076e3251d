package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nested", "dir", "tasks.db")
	st, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: path})
	if err != nil {
		t.Fatalf("Open() err=%v, want nil", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func ids(tasks []Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestOpen_CreatesDirectory(t *testing.T) {
	_, path := openTestStore(t)

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("Stat(dir) err=%v, want nil", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat(db) err=%v, want nil", err)
	}
}

func TestOpen_Twice_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")

	first, err := Open(ctx, Options{DSN: path})
	if err != nil {
		t.Fatalf("first Open() err=%v", err)
	}
	if err := first.Insert(ctx, Task{ID: "1", Title: "keep me", CreatedAt: "2024-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("Insert() err=%v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}

	second, err := Open(ctx, Options{DSN: path})
	if err != nil {
		t.Fatalf("second Open() err=%v, want nil", err)
	}
	defer second.Close()

	var tables int
	if err := second.db.GetContext(ctx, &tables, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'tasks'`); err != nil {
		t.Fatalf("count tables err=%v", err)
	}
	if tables != 1 {
		t.Fatalf("tables=%d, want 1", tables)
	}

	list, err := second.List(ctx)
	if err != nil {
		t.Fatalf("List() err=%v", err)
	}
	if len(list) != 1 || list[0].ID != "1" {
		t.Fatalf("List() = %+v, want the task inserted before reopening", list)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle", DSN: "x"})
	if err == nil {
		t.Fatalf("Open() err=nil, want non-nil")
	}
}

func TestOpen_DirectoryNotCreatable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() err=%v", err)
	}

	_, err := Open(context.Background(), Options{DSN: filepath.Join(blocker, "sub", "tasks.db")})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("Open() err=%v, want %v", err, ErrIO)
	}
}

func TestList_Empty(t *testing.T) {
	st, _ := openTestStore(t)

	list, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("List() err=%v, want nil", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("List() = %#v, want empty non-nil slice", list)
	}
}

func TestInsert_ThenList(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	in := Task{ID: "a1", Title: "buy milk", Done: true, CreatedAt: "2024-03-01T10:00:00Z"}
	if err := st.Insert(ctx, in); err != nil {
		t.Fatalf("Insert() err=%v, want nil", err)
	}

	list, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List() err=%v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List() len=%d, want 1", len(list))
	}
	if !reflect.DeepEqual(list[0], in) {
		t.Fatalf("List()[0] = %+v, want %+v", list[0], in)
	}
}

func TestInsert_DuplicateKey(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	orig := Task{ID: "dup", Title: "original", CreatedAt: "2024-01-01T00:00:00Z"}
	if err := st.Insert(ctx, orig); err != nil {
		t.Fatalf("Insert() err=%v", err)
	}

	err := st.Insert(ctx, Task{ID: "dup", Title: "impostor", Done: true, CreatedAt: "2025-01-01T00:00:00Z"})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("Insert(dup) err=%v, want %v", err, ErrDuplicateKey)
	}
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "insert" || opErr.ID != "dup" {
		t.Fatalf("Insert(dup) err=%#v, want *OpError for insert dup", err)
	}

	got, ok, err := st.Get(ctx, "dup")
	if err != nil || !ok {
		t.Fatalf("Get() ok=%v err=%v", ok, err)
	}
	if got != orig {
		t.Fatalf("Get() = %+v, want original %+v", got, orig)
	}
}

func TestInsert_MissingTitle(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"", "   "} {
		err := st.Insert(ctx, Task{ID: "x", Title: title, CreatedAt: "2024-01-01T00:00:00Z"})
		if !errors.Is(err, ErrConstraintViolation) {
			t.Fatalf("Insert(title=%q) err=%v, want %v", title, err, ErrConstraintViolation)
		}
	}

	list, _ := st.List(ctx)
	if len(list) != 0 {
		t.Fatalf("List() len=%d, want 0", len(list))
	}
}

func TestInsert_MissingIDOrCreatedAt(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	if err := st.Insert(ctx, Task{Title: "t", CreatedAt: "2024-01-01T00:00:00Z"}); !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("Insert(no id) err=%v, want %v", err, ErrConstraintViolation)
	}
	if err := st.Insert(ctx, Task{ID: "1", Title: "t"}); !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("Insert(no createdAt) err=%v, want %v", err, ErrConstraintViolation)
	}
}

func TestSetDone(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	in := Task{ID: "1", Title: "buy milk", CreatedAt: "2024-01-01T00:00:00Z"}
	_ = st.Insert(ctx, in)

	got, ok, err := st.SetDone(ctx, "1", true)
	if err != nil || !ok {
		t.Fatalf("SetDone() ok=%v err=%v, want ok=true err=nil", ok, err)
	}
	want := in
	want.Done = true
	if got != want {
		t.Fatalf("SetDone() = %+v, want %+v", got, want)
	}

	// same value again still reports the row
	if _, ok, err := st.SetDone(ctx, "1", true); err != nil || !ok {
		t.Fatalf("SetDone(again) ok=%v err=%v", ok, err)
	}

	list, _ := st.List(ctx)
	if len(list) != 1 || !list[0].Done {
		t.Fatalf("List() after SetDone = %+v, want done task", list)
	}

	got, ok, _ = st.SetDone(ctx, "1", false)
	if !ok || got.Done {
		t.Fatalf("SetDone(false) = %+v ok=%v, want not done", got, ok)
	}
}

func TestSetDone_NotFound(t *testing.T) {
	st, _ := openTestStore(t)

	got, ok, err := st.SetDone(context.Background(), "missing", true)
	if err != nil {
		t.Fatalf("SetDone() err=%v, want nil", err)
	}
	if ok {
		t.Fatalf("SetDone() ok=true, want false")
	}
	if got != (Task{}) {
		t.Fatalf("SetDone() = %+v, want zero task", got)
	}
}

func TestDelete(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	_ = st.Insert(ctx, Task{ID: "1", Title: "t", CreatedAt: "2024-01-01T00:00:00Z"})

	removed, err := st.Delete(ctx, "1")
	if err != nil || !removed {
		t.Fatalf("Delete() = %v, %v, want true, nil", removed, err)
	}
	list, _ := st.List(ctx)
	if len(list) != 0 {
		t.Fatalf("List() len=%d after Delete, want 0", len(list))
	}

	removed, err = st.Delete(ctx, "1")
	if err != nil || removed {
		t.Fatalf("Delete(again) = %v, %v, want false, nil", removed, err)
	}
}

func TestGet(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	in := Task{ID: "g", Title: "t", CreatedAt: "2024-01-01T00:00:00Z"}
	_ = st.Insert(ctx, in)

	got, ok, err := st.Get(ctx, "g")
	if err != nil || !ok || got != in {
		t.Fatalf("Get() = %+v, %v, %v, want %+v", got, ok, err, in)
	}
	if _, ok, err := st.Get(ctx, "nope"); ok || err != nil {
		t.Fatalf("Get(nope) ok=%v err=%v, want false, nil", ok, err)
	}
}

func TestList_OrderedByCreatedAtDesc(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	stamps := []string{
		"2024-01-01T00:00:00Z",
		"2024-01-01T00:00:01Z",
		"2024-02-01T00:00:00Z",
		"2025-06-30T12:00:00Z",
	}
	// insert out of order to make sure the engine sorts
	for _, i := range []int{2, 0, 3, 1} {
		if err := st.Insert(ctx, Task{ID: string(rune('a' + i)), Title: "t", CreatedAt: stamps[i]}); err != nil {
			t.Fatalf("Insert() err=%v", err)
		}
	}

	list, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List() err=%v", err)
	}
	if got, want := ids(list), []string{"d", "c", "b", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("List() ids=%v, want %v", got, want)
	}
}

func TestList_TiesOrderedByID(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		_ = st.Insert(ctx, Task{ID: id, Title: "t", CreatedAt: "2024-01-01T00:00:00Z"})
	}

	list, _ := st.List(ctx)
	if got, want := ids(list), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("List() ids=%v, want %v", got, want)
	}
}

func TestEndToEndScenario(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	t1 := Task{ID: "1", Title: "buy milk", Done: false, CreatedAt: "2024-01-01T00:00:00Z"}
	t2 := Task{ID: "2", Title: "pay bills", Done: false, CreatedAt: "2024-01-02T00:00:00Z"}
	if err := st.Insert(ctx, t1); err != nil {
		t.Fatalf("Insert(1) err=%v", err)
	}
	if err := st.Insert(ctx, t2); err != nil {
		t.Fatalf("Insert(2) err=%v", err)
	}

	list, _ := st.List(ctx)
	if got := ids(list); !reflect.DeepEqual(got, []string{"2", "1"}) {
		t.Fatalf("List() ids=%v, want [2 1]", got)
	}

	done, ok, err := st.SetDone(ctx, "1", true)
	if err != nil || !ok || !done.Done || done.ID != "1" {
		t.Fatalf("SetDone(1) = %+v, %v, %v", done, ok, err)
	}

	removed, err := st.Delete(ctx, "2")
	if err != nil || !removed {
		t.Fatalf("Delete(2) = %v, %v", removed, err)
	}

	list, _ = st.List(ctx)
	want := t1
	want.Done = true
	if len(list) != 1 || list[0] != want {
		t.Fatalf("final List() = %+v, want [%+v]", list, want)
	}
}

func TestConcurrentSetDone(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	const n = 50
	for i := 0; i < n; i++ {
		id := string(rune('A' + i))
		if err := st.Insert(ctx, Task{ID: id, Title: "t", CreatedAt: "2024-01-01T00:00:00Z"}); err != nil {
			t.Fatalf("Insert(%s) err=%v", id, err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			got, ok, err := st.SetDone(ctx, id, true)
			if err != nil {
				errs <- err
				return
			}
			if !ok || !got.Done || got.ID != id {
				errs <- errors.New("unexpected read-back for " + id)
			}
		}(string(rune('A' + i)))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("SetDone() err=%v", err)
	}

	list, _ := st.List(ctx)
	for _, task := range list {
		if !task.Done {
			t.Fatalf("task %s not done", task.ID)
		}
	}
}

func TestPing(t *testing.T) {
	st, _ := openTestStore(t)

	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() err=%v, want nil", err)
	}
}

func TestVersion(t *testing.T) {
	st, _ := openTestStore(t)

	ver, err := st.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() err=%v, want nil", err)
	}
	if !strings.HasPrefix(ver, "sqlite 3.") {
		t.Fatalf("Version() = %q, want sqlite 3.x", ver)
	}
}
