package alignment

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/RishiKendai/textpair/internal/ngram"
	"github.com/RishiKendai/textpair/internal/output"
	"github.com/klauspost/compress/zstd"
	"go.mongodb.org/mongo-driver/bson"
)

func TestRun_identicalDocuments(t *testing.T) {
	source := mustIndex(t, 2, "the quick brown fox jumps")
	target := mustIndex(t, 2, "the quick brown fox jumps")
	params := testParams()
	params.MinMatchingNgrams = 4
	params.MinPassageLength = 5

	result, err := Run(context.Background(), source, target, params)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Alignments) != 1 {
		t.Fatalf("alignments = %+v, want 1", result.Alignments)
	}
	a := result.Alignments[0]
	if a.SourceStart != 0 || a.SourceEnd != 5 || a.TargetStart != 0 || a.TargetEnd != 5 {
		t.Errorf("alignment ranges = %+v", a)
	}
	if a.MatchedNgrams != 4 || a.GapTokens != 0 {
		t.Errorf("matched = %d gaps = %d, want 4 and 0", a.MatchedNgrams, a.GapTokens)
	}
	if a.SourceDocID != "doc0" || a.TargetDocID != "doc0" {
		t.Errorf("doc ids = %q %q", a.SourceDocID, a.TargetDocID)
	}
	if result.Summary.DocumentsProcessed != 1 || result.Summary.AlignmentsProduced != 1 {
		t.Errorf("summary = %+v", result.Summary)
	}
}

func TestRun_bridgesInsertion(t *testing.T) {
	source := mustIndex(t, 2, "A B C D E")
	target := mustIndex(t, 2, "A B X Y C D E")
	params := testParams()
	params.GapTolerance = 2

	result, err := Run(context.Background(), source, target, params)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Alignments) != 1 {
		t.Fatalf("alignments = %+v, want 1", result.Alignments)
	}
	a := result.Alignments[0]
	if a.SourceEnd != 5 || a.TargetEnd != 7 || a.GapTokens != 2 {
		t.Errorf("alignment = %+v", a)
	}
}

func TestRun_deterministicAcrossWorkerCounts(t *testing.T) {
	source, target := randomCorpora(t, 42, 40, 150)
	params := DefaultParams()
	params.BanalityCeiling = 60

	var reference []byte
	for _, workers := range []int{1, 2, 8, 1, 2, 8} {
		params.Workers = workers
		result, err := Run(context.Background(), source, target, params)
		if err != nil {
			t.Fatal(err)
		}
		if len(result.Alignments) == 0 {
			t.Fatal("expected alignments from reused passages")
		}
		var buf bytes.Buffer
		if err := output.Write(&buf, result.Alignments, output.FormatJSONL); err != nil {
			t.Fatal(err)
		}
		if reference == nil {
			reference = buf.Bytes()
			continue
		}
		if !bytes.Equal(reference, buf.Bytes()) {
			t.Fatalf("workers=%d: output differs from single-worker run", workers)
		}
	}
}

func TestRun_orderedBySourceDocument(t *testing.T) {
	source, target := randomCorpora(t, 3, 25, 120)
	params := DefaultParams()
	params.Workers = 4
	result, err := Run(context.Background(), source, target, params)
	if err != nil {
		t.Fatal(err)
	}
	slot := make(map[string]int, source.Len())
	for i := 0; i < source.Len(); i++ {
		slot[source.Doc(i).ID] = i
	}
	for i := 1; i < len(result.Alignments); i++ {
		prev, cur := result.Alignments[i-1], result.Alignments[i]
		if slot[prev.SourceDocID] > slot[cur.SourceDocID] {
			t.Fatalf("alignment %d out of source order", i)
		}
		if prev.SourceDocID == cur.SourceDocID && prev.TargetDocID == cur.TargetDocID && prev.SourceStart > cur.SourceStart {
			t.Fatalf("alignment %d out of source offset order within pair", i)
		}
	}
}

func TestRun_thresholdsHold(t *testing.T) {
	source, target := randomCorpora(t, 5, 30, 120)
	params := DefaultParams()
	params.MinMatchingNgrams = 6
	params.MinPassageLength = 10
	result, err := Run(context.Background(), source, target, params)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range result.Alignments {
		if a.MatchedNgrams < params.MinMatchingNgrams {
			t.Errorf("alignment with %d matched ngrams emitted", a.MatchedNgrams)
		}
		if min(a.SourceLength(), a.TargetLength()) < params.MinPassageLength {
			t.Errorf("alignment of length %d emitted", min(a.SourceLength(), a.TargetLength()))
		}
	}
	s := result.Summary
	if s.AlignmentsRejected != s.RejectedTooFew+s.RejectedTooShort+s.RejectedBanal {
		t.Errorf("rejection counts inconsistent: %+v", s)
	}
}

func TestRun_repetitiveTextRespectsMinimum(t *testing.T) {
	text := "x y x y x y x y"
	source := mustIndex(t, 2, text)
	target := mustIndex(t, 2, text)

	params := testParams()
	params.MinMatchingNgrams = 10
	result, err := Run(context.Background(), source, target, params)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Alignments) != 0 {
		t.Errorf("alignments = %+v, want none: the text holds only 7 bigrams", result.Alignments)
	}

	params.MinMatchingNgrams = 1
	result, err = Run(context.Background(), source, target, params)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Alignments) == 0 {
		t.Fatal("expected alignments")
	}
	for _, a := range result.Alignments {
		if windows := a.SourceLength() - 1; a.MatchedNgrams > windows {
			t.Errorf("alignment %+v matches %d bigrams in %d windows", a, a.MatchedNgrams, windows)
		}
		if a.Score > float64(a.MatchedNgrams) {
			t.Errorf("score %v exceeds matched count %d", a.Score, a.MatchedNgrams)
		}
	}
}

func TestRun_banalSourceYieldsNothing(t *testing.T) {
	// every bigram of the source also saturates the target corpus
	banal := "of the of the of the of the"
	source := mustIndex(t, 2, banal)
	target := mustIndex(t, 2, banal, banal, banal, banal)
	params := testParams()
	params.BanalityCeiling = 10
	params.BanalityThreshold = 0.5

	result, err := Run(context.Background(), source, target, params)
	if err != nil {
		t.Fatal(err)
	}
	if result.Summary.Hits == 0 {
		t.Fatal("expected raw hits")
	}
	if len(result.Alignments) != 0 {
		t.Errorf("alignments = %+v, want none", result.Alignments)
	}
	if result.Summary.RejectedBanal == 0 {
		t.Errorf("summary = %+v, want banal rejections", result.Summary)
	}
}

func TestRun_runLevelFailures(t *testing.T) {
	target := mustIndex(t, 2, "a b c")
	ctx := context.Background()

	if _, err := Run(ctx, &ngram.Index{}, target, testParams()); !errors.Is(err, ErrEmptyCorpus) {
		t.Errorf("empty source: err = %v", err)
	}
	if _, err := Run(ctx, nil, target, testParams()); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("nil source: err = %v", err)
	}
	if _, err := Run(ctx, target, nil, testParams()); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("nil target: err = %v", err)
	}
	bad := testParams()
	bad.MinMatchingNgrams = 0
	if _, err := Run(ctx, target, target, bad); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("bad params: err = %v", err)
	}
	other := mustIndex(t, 3, "a b c")
	if _, err := Run(ctx, target, other, testParams()); !errors.Is(err, ErrNgramMismatch) {
		t.Errorf("ngram mismatch: err = %v", err)
	}
}

// corruptIndex writes an index stream whose records flagged in bad disagree
// with their token counts
func corruptIndex(t *testing.T, bad ...bool) *ngram.Index {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	write := func(v bson.D) {
		data, err := bson.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = enc.Write(data)
	}
	write(bson.D{{Key: "format", Value: "textpair-ngram-index"}, {Key: "version", Value: 1}, {Key: "n", Value: 1}, {Key: "documents", Value: len(bad)}})
	hasher := ngram.NewHasher()
	for i, b := range bad {
		keys := []int64{int64(hasher.Sum([]string{"x"})), int64(hasher.Sum([]string{"y"}))}
		tokens := 2
		if b {
			tokens = 9
		}
		write(bson.D{{Key: "id", Value: "d" + string(rune('a'+i))}, {Key: "tokens", Value: tokens}, {Key: "keys", Value: keys}})
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	idx, err := ngram.Load(&buf)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestRun_corruptDocumentsRecorded(t *testing.T) {
	source := corruptIndex(t, false, true, false)
	target := mustIndex(t, 1, "x y")
	result, err := Run(context.Background(), source, target, testParams())
	if err != nil {
		t.Fatal(err)
	}
	if result.Summary.DocumentsFailed != 1 || result.Summary.DocumentsProcessed != 2 {
		t.Errorf("summary = %+v", result.Summary)
	}
	if len(result.Errors) != 1 || result.Errors[0].DocID != "db" || !errors.Is(result.Errors[0], ErrCorruptDocument) {
		t.Errorf("errors = %v", result.Errors)
	}
	if len(result.Alignments) != 2 {
		t.Errorf("alignments = %d, want 2", len(result.Alignments))
	}
}

func TestRun_allDocumentsFailed(t *testing.T) {
	source := corruptIndex(t, true, true)
	target := mustIndex(t, 1, "x y")
	if _, err := Run(context.Background(), source, target, testParams()); !errors.Is(err, ErrAllDocumentsFailed) {
		t.Errorf("err = %v, want ErrAllDocumentsFailed", err)
	}
}

func TestRun_cancelledBeforeStart(t *testing.T) {
	source, target := randomCorpora(t, 9, 10, 60)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := Run(ctx, source, target, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Summary.Canceled {
		t.Error("summary should report cancellation")
	}
	if result.Summary.DocumentsProcessed+result.Summary.DocumentsSkipped != result.Summary.DocumentsTotal {
		t.Errorf("summary = %+v", result.Summary)
	}
}

func TestChunkJob_checksContextPerDocument(t *testing.T) {
	source, target := randomCorpora(t, 13, 6, 60)
	freq := ngram.Combined(source, target)
	params := DefaultParams()
	cmp := &comparison{
		source: source,
		target: target,
		gen:    NewGenerator(source, target, freq, params),
		merger: NewMerger(source.NgramLength(), params.GapTolerance),
		scorer: NewScorer(source.NgramLength(), freq, params),
	}

	live := &chunkJob{cmp: cmp, start: 0, out: make([]documentResult, 3)}
	if err := live.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i, dr := range live.out {
		if !dr.done {
			t.Errorf("document %d not compared", i)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stopped := &chunkJob{cmp: cmp, start: 3, out: make([]documentResult, 3)}
	if err := stopped.Execute(ctx); err != nil {
		t.Fatal(err)
	}
	for i, dr := range stopped.out {
		if dr.done {
			t.Errorf("document %d compared after cancellation", i+3)
		}
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		docs, parts int
		want        [][2]int
	}{
		{1, 8, [][2]int{{0, 1}}},
		{5, 2, [][2]int{{0, 3}, {3, 5}}},
		{6, 3, [][2]int{{0, 2}, {2, 4}, {4, 6}}},
		{7, 3, [][2]int{{0, 3}, {3, 5}, {5, 7}}},
	}
	for _, tt := range tests {
		got := partition(tt.docs, tt.parts)
		if len(got) != len(tt.want) {
			t.Errorf("partition(%d, %d) = %v, want %v", tt.docs, tt.parts, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("partition(%d, %d) = %v, want %v", tt.docs, tt.parts, got, tt.want)
				break
			}
		}
	}
}

func TestParams_ValidateAndWorkers(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
	p := DefaultParams()
	p.BanalityThreshold = 1.5
	if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("threshold 1.5: err = %v", err)
	}
	p = DefaultParams()
	p.CoverageWeight, p.RarityWeight = 0, 0
	if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("zero weights: err = %v", err)
	}
	p = DefaultParams()
	p.Workers = 8
	if got := p.WorkerCount(3); got != 3 {
		t.Errorf("WorkerCount(3) = %d, want 3", got)
	}
	p.Workers = 0
	if got := p.WorkerCount(1000); got != min(DefaultWorkers(), 1000) {
		t.Errorf("WorkerCount default = %d", got)
	}
}
