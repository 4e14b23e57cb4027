package imob

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// fakeDatastore implements Datastore in memory.
type fakeDatastore struct {
	mu        sync.Mutex
	existing  map[string]bool
	lojas     map[int64]Loja
	inserted  []Record
	insertErr func(batch int) error // per-call failure injection, 1-based
	inserts   int
}

func newFakeDatastore() *fakeDatastore {
	return &fakeDatastore{
		existing: make(map[string]bool),
		lojas:    make(map[int64]Loja),
	}
}

func (f *fakeDatastore) ExistingKeys(ctx context.Context, keys []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found []string
	for _, key := range keys {
		if f.existing[key] {
			found = append(found, key)
		}
	}
	return found, nil
}

func (f *fakeDatastore) LookupLojas(ctx context.Context, ids []int64) ([]Loja, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var lojas []Loja
	for _, id := range ids {
		if loja, ok := f.lojas[id]; ok {
			lojas = append(lojas, loja)
		}
	}
	return lojas, nil
}

func (f *fakeDatastore) InsertRows(ctx context.Context, rows []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.insertErr != nil {
		if err := f.insertErr(f.inserts); err != nil {
			return err
		}
	}
	f.inserted = append(f.inserted, rows...)
	return nil
}

func pasteLine(seq, data, fornecedor string) string {
	fields := []string{seq, data, "ENTRADA", "10", "1", "DEP", "5", "COMPRA", fornecedor, data, "maria"}
	return strings.Join(fields, "\t")
}

func TestService_ProcessEndToEnd(t *testing.T) {
	// Two pasted lines; key 1001 already ingested remotely. Expect
	// summary (2 total, 1 duplicate, 1 new) and one transformed row.
	db := newFakeDatastore()
	db.existing["1001"] = true
	db.lojas[7] = Loja{ID: 7, Nome: "Loja Centro", Segmento: strPtr("Varejo")}

	svc := NewService(db, Options{})
	sess := svc.CreateSession()

	paste := pasteLine("1001", "15/03/2024", "7 - Loja Centro") + "\n" +
		pasteLine("1002", "16/03/2024", "7 - Loja Centro")

	preview, err := svc.Process(context.Background(), sess.ID, ProcessInput{
		Data: paste, Empresa: "3", Produto: "IMOB",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if preview.Summary.TotalParsed != 2 {
		t.Errorf("TotalParsed = %d, want 2", preview.Summary.TotalParsed)
	}
	if preview.Summary.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", preview.Summary.Duplicates)
	}
	if preview.Summary.NewRows != 1 {
		t.Errorf("NewRows = %d, want 1", preview.Summary.NewRows)
	}
	if len(preview.Rows) != 1 {
		t.Fatalf("preview rendered %d rows, want 1", len(preview.Rows))
	}

	row := preview.Rows[0]
	if row[ColSeq] != int64(1002) {
		t.Errorf("new row key = %v, want 1002", row[ColSeq])
	}
	if row["loja"] != "Loja Centro" || row["Segmento"] != "Varejo" {
		t.Errorf("enrichment = %v/%v, want Loja Centro/Varejo", row["loja"], row["Segmento"])
	}
	if row["Emp"] != int64(3) || row["Produto"] != "IMOB" {
		t.Errorf("selectors = %v/%v, want 3/IMOB", row["Emp"], row["Produto"])
	}
}

func TestService_ProcessIsIdempotent(t *testing.T) {
	db := newFakeDatastore()
	db.existing["1001"] = true

	svc := NewService(db, Options{})
	sess := svc.CreateSession()

	in := ProcessInput{
		Data:    pasteLine("1001", "15/03/2024", "") + "\n" + pasteLine("1002", "15/03/2024", ""),
		Empresa: "1", Produto: "IMOB",
	}

	first, err := svc.Process(context.Background(), sess.ID, in)
	if err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	second, err := svc.Process(context.Background(), sess.ID, in)
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	if first.Summary != second.Summary {
		t.Errorf("summaries differ across identical runs: %+v vs %+v", first.Summary, second.Summary)
	}
	if sess.Pending() != 1 {
		t.Errorf("pending = %d, want 1 (buffer replaced, not appended)", sess.Pending())
	}
}

func TestService_ProcessInputErrors(t *testing.T) {
	db := newFakeDatastore()
	svc := NewService(db, Options{})
	sess := svc.CreateSession()

	tests := []struct {
		name string
		in   ProcessInput
		want error
	}{
		{"empty paste", ProcessInput{Empresa: "1", Produto: "IMOB"}, ErrEmptyInput},
		{"missing selectors", ProcessInput{Data: "x"}, ErrMissingSelectors},
		{"no valid keys", ProcessInput{Data: "\t15/03/2024\tENTRADA", Empresa: "1", Produto: "IMOB"}, ErrNoValidKeys},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Process(context.Background(), sess.ID, tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("Process() error = %v, want %v", err, tt.want)
			}
		})
	}

	if sess.Pending() != 0 {
		t.Errorf("pending = %d, want 0 (input errors mutate nothing)", sess.Pending())
	}
}

func TestService_InsertDrainsBuffer(t *testing.T) {
	db := newFakeDatastore()
	svc := NewService(db, Options{ChunkSize: 2})
	sess := svc.CreateSession()

	var lines []string
	for _, seq := range []string{"1", "2", "3", "4", "5"} {
		lines = append(lines, pasteLine(seq, "15/03/2024", ""))
	}
	_, err := svc.Process(context.Background(), sess.ID, ProcessInput{
		Data: strings.Join(lines, "\n"), Empresa: "1", Produto: "IMOB",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	report, err := svc.Insert(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if report.Inserted != 5 || report.Total != 5 {
		t.Errorf("report = %+v, want 5 of 5 inserted", report)
	}
	if len(db.inserted) != 5 {
		t.Errorf("store holds %d rows, want 5", len(db.inserted))
	}
	if sess.Pending() != 0 {
		t.Errorf("pending = %d, want 0 after full success", sess.Pending())
	}

	if _, err := svc.Insert(context.Background(), sess.ID); !errors.Is(err, ErrNothingToInsert) {
		t.Errorf("second Insert() error = %v, want ErrNothingToInsert", err)
	}
}

func TestService_InsertPartialFailureAndRetry(t *testing.T) {
	db := newFakeDatastore()
	boom := errors.New("constraint violation")
	db.insertErr = func(batch int) error {
		if batch == 2 {
			return boom
		}
		return nil
	}

	svc := NewService(db, Options{ChunkSize: 2})
	sess := svc.CreateSession()

	var lines []string
	for _, seq := range []string{"1", "2", "3", "4", "5", "6"} {
		lines = append(lines, pasteLine(seq, "15/03/2024", ""))
	}
	if _, err := svc.Process(context.Background(), sess.ID, ProcessInput{
		Data: strings.Join(lines, "\n"), Empresa: "1", Produto: "IMOB",
	}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	report, err := svc.Insert(context.Background(), sess.ID)
	if !errors.Is(err, boom) {
		t.Fatalf("Insert() error = %v, want wrapped %v", err, boom)
	}
	if report.Inserted != 2 || report.FailedBatch != 2 || report.Remaining != 4 {
		t.Errorf("report = %+v, want 2 inserted, batch 2 failed, 4 remaining", report)
	}
	if sess.Pending() != 4 {
		t.Errorf("pending = %d, want 4 (failed batch and tail retained)", sess.Pending())
	}

	// Retry resubmits the whole remaining buffer from scratch.
	report, err = svc.Insert(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("retry Insert() error = %v", err)
	}
	if report.Total != 4 || report.Inserted != 4 {
		t.Errorf("retry report = %+v, want all 4 remaining inserted", report)
	}
	if sess.Pending() != 0 {
		t.Errorf("pending = %d, want 0 after retry", sess.Pending())
	}
	if len(db.inserted) != 6 {
		t.Errorf("store holds %d rows, want 6", len(db.inserted))
	}
}

func TestService_SingleFlightGuard(t *testing.T) {
	db := newFakeDatastore()
	svc := NewService(db, Options{})
	sess := svc.CreateSession()

	if err := sess.begin(); err != nil {
		t.Fatalf("begin() error = %v", err)
	}

	if _, err := svc.Process(context.Background(), sess.ID, ProcessInput{
		Data: "1001", Empresa: "1", Produto: "IMOB",
	}); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Process() during cycle = %v, want ErrSessionBusy", err)
	}
	if _, err := svc.Insert(context.Background(), sess.ID); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Insert() during cycle = %v, want ErrSessionBusy", err)
	}

	sess.end()

	if _, err := svc.Process(context.Background(), sess.ID, ProcessInput{
		Data: "1001", Empresa: "1", Produto: "IMOB",
	}); err != nil {
		t.Errorf("Process() after cycle = %v, want nil", err)
	}
}

func TestService_UnknownSession(t *testing.T) {
	svc := NewService(newFakeDatastore(), Options{})

	if _, err := svc.Process(context.Background(), "nope", ProcessInput{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Process() = %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.Preview("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Preview() = %v, want ErrSessionNotFound", err)
	}
}

func TestService_PruneSessions(t *testing.T) {
	svc := NewService(newFakeDatastore(), Options{SessionTTL: 1})
	sess := svc.CreateSession()

	// TTL of 1ns: the session is immediately idle.
	if n := svc.PruneSessions(); n != 1 {
		t.Errorf("PruneSessions() = %d, want 1", n)
	}
	if _, err := svc.Session(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Session() after prune = %v, want ErrSessionNotFound", err)
	}
}
