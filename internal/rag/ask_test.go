package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/rag"
	"github.com/taurusduan/ragflow-plus/internal/rag/mocks"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
	"github.com/taurusduan/ragflow-plus/internal/storage"
)

type askFixture struct {
	models    *mocks.MockModelProvider
	kbs       *mocks.MockKnowledgeBaseStore
	retriever *mocks.MockRetriever
	graph     *mocks.MockRetriever
	asker     *rag.Asker
	embedder  *fakeEmbedder
}

func newAskFixture(t *testing.T) *askFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &askFixture{
		models:    mocks.NewMockModelProvider(ctrl),
		kbs:       mocks.NewMockKnowledgeBaseStore(ctrl),
		retriever: mocks.NewMockRetriever(ctrl),
		graph:     mocks.NewMockRetriever(ctrl),
		embedder:  &fakeEmbedder{name: "bge"},
	}
	resolver := rag.NewResolver(f.retriever, rag.ImageStore{VisitPoint: "minio:9000"}, nil)
	f.asker = rag.NewAsker(f.models, f.kbs, f.retriever, f.graph, resolver, llm.WordCounter{}, nil)
	return f
}

// askSnapshots grows to 20 words and then cites the first chunk.
func askSnapshots() []string {
	snaps := cumulative(20)
	return append(snaps, snaps[19]+" ##0$$")
}

func TestAsk(t *testing.T) {
	f := newAskFixture(t)
	model := &fakeModel{maxTokens: 8192, snapshots: askSnapshots()}
	f.kbs.EXPECT().GetByIDs(gomock.Any(), []string{"kb1", "kb2"}).Return([]storage.KnowledgeBase{
		{ID: "kb1", TenantID: "t1", EmbeddingModel: "bge", ParserID: storage.ParserNaive},
		{ID: "kb2", TenantID: "t2", EmbeddingModel: "bge", ParserID: storage.ParserKnowledgeGraph},
	}, nil)
	f.models.EXPECT().Embedder(gomock.Any(), "t1", "bge").Return(f.embedder, nil)
	f.models.EXPECT().ChatModel(gomock.Any(), "t1", "").Return(model, nil)

	var req retrieval.Request
	f.retriever.EXPECT().Retrieval(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, r retrieval.Request) (retrieval.Result, error) {
			req = r
			return knowledge(), nil
		})

	envs, err := collect(f.asker.Ask(context.Background(), rag.AskRequest{
		Question: "What is the capital?",
		KBIDs:    []string{"kb1", "kb2"},
		TenantID: "t1",
	}))
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if req.PageSize != 12 || req.Threshold != 0.01 || req.VectorWeight != 0.3 || req.Question != "What is the capital?" {
		t.Errorf("retrieval request = %+v", req)
	}
	if len(req.TenantIDs) != 2 || req.TenantIDs[0] != "t1" || req.TenantIDs[1] != "t2" {
		t.Errorf("retrieval tenants = %v, want [t1 t2]", req.TenantIDs)
	}

	if len(envs) != 3 {
		t.Fatalf("Ask() yielded %d envelopes, want 3", len(envs))
	}
	for i, env := range envs[:2] {
		if env.Reference != nil {
			t.Errorf("delta %d carries a reference", i)
		}
	}
	final := envs[2]
	if !strings.HasSuffix(final.Answer, "w20 ##0$$") {
		t.Errorf("final answer = %q", final.Answer)
	}
	if final.Reference == nil || len(final.Reference.DocAggs) != 1 || final.Reference.DocAggs[0].DocID != "d1" {
		t.Errorf("final reference = %+v", final.Reference)
	}

	if !strings.Contains(model.systems[0], "Paris is the capital of France.") {
		t.Errorf("system prompt lacks knowledge: %q", model.systems[0])
	}
	if temp := model.params[0].Temperature; temp == nil || *temp != 0.1 {
		t.Errorf("temperature = %v, want 0.1", temp)
	}
}

func TestAsk_KnowledgeGraph(t *testing.T) {
	f := newAskFixture(t)
	model := &fakeModel{maxTokens: 8192, snapshots: askSnapshots()}
	f.kbs.EXPECT().GetByIDs(gomock.Any(), []string{"kb1"}).Return([]storage.KnowledgeBase{
		{ID: "kb1", TenantID: "t1", EmbeddingModel: "bge", ParserID: storage.ParserKnowledgeGraph},
	}, nil)
	f.models.EXPECT().Embedder(gomock.Any(), "t1", "bge").Return(f.embedder, nil)
	f.models.EXPECT().ChatModel(gomock.Any(), "t1", "").Return(model, nil)
	f.graph.EXPECT().Retrieval(gomock.Any(), gomock.Any()).Return(knowledge(), nil)

	envs, err := collect(f.asker.Ask(context.Background(), rag.AskRequest{
		Question: "Who founded it?",
		KBIDs:    []string{"kb1"},
		TenantID: "t1",
	}))
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if last := envs[len(envs)-1]; last.Reference == nil || len(last.Reference.Chunks) != 1 {
		t.Errorf("final envelope = %+v, want the graph knowledge as reference", last)
	}
}

func TestAsk_NoKnowledgeBase(t *testing.T) {
	f := newAskFixture(t)
	f.kbs.EXPECT().GetByIDs(gomock.Any(), []string{"gone"}).Return(nil, nil)

	envs, err := collect(f.asker.Ask(context.Background(), rag.AskRequest{
		Question: "q",
		KBIDs:    []string{"gone"},
		TenantID: "t1",
	}))
	if !errors.Is(err, rag.ErrNoKnowledgeBase) {
		t.Fatalf("Ask() error = %v, want ErrNoKnowledgeBase", err)
	}
	if len(envs) != 0 {
		t.Errorf("Ask() yielded %d envelopes before the error", len(envs))
	}
}
