package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"opsmind/backend/internal/retrieval"
	"opsmind/backend/internal/vector"
)

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, owner, query string) ([]vector.Match, error) {
	args := m.Called(ctx, owner, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vector.Match), args.Error(1)
}

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Create(ctx context.Context, owner, role, content string) error {
	return m.Called(ctx, owner, role, content).Error(0)
}

func (m *MockRepo) History(ctx context.Context, owner string) ([]Entry, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Entry), args.Error(1)
}

func (m *MockRepo) DeleteByOwner(ctx context.Context, owner string) error {
	return m.Called(ctx, owner).Error(0)
}

type MockCounter struct {
	mock.Mock
}

func (m *MockCounter) CountByOwner(ctx context.Context, owner string) (int, error) {
	args := m.Called(ctx, owner)
	return args.Int(0), args.Error(1)
}

// fakeStreamer replays a fixed fragment list regardless of input.
type fakeStreamer struct {
	fragments []string
	gotBlock  string
}

func (f *fakeStreamer) Stream(ctx context.Context, contextBlock, query string, emit func(string) error) error {
	f.gotBlock = contextBlock
	for _, frag := range f.fragments {
		if err := emit(frag); err != nil {
			return err
		}
	}
	return nil
}

// captureEmitter records the event sequence the service produces.
type captureEmitter struct {
	sources    [][]retrieval.Citation
	texts      []string
	done       int
	sourcesErr error
}

func (c *captureEmitter) Sources(cs []retrieval.Citation) error {
	c.sources = append(c.sources, cs)
	return c.sourcesErr
}

func (c *captureEmitter) Text(fragment string) error {
	c.texts = append(c.texts, fragment)
	return nil
}

func (c *captureEmitter) Done() error {
	c.done++
	return nil
}

func sampleMatches() []vector.Match {
	return []vector.Match{
		{Chunk: vector.Chunk{Filename: "sop.pdf", PageNumber: 3, Text: "Refunds take 5 days."}, Score: 0.91},
	}
}

func TestAsk_RecordsBothTurns(t *testing.T) {
	retriever := new(MockRetriever)
	repo := new(MockRepo)
	streamer := &fakeStreamer{fragments: []string{"Refunds ", "take ", "5 days."}}
	em := &captureEmitter{}

	retriever.On("Retrieve", mock.Anything, "user-1", "refund time?").Return(sampleMatches(), nil)
	repo.On("Create", mock.Anything, "user-1", RoleUser, "refund time?").Return(nil)
	repo.On("Create", mock.Anything, "user-1", RoleBot, "Refunds take 5 days.").Return(nil)

	svc := NewService(retriever, streamer, repo, new(MockCounter))
	err := svc.Ask(context.Background(), "user-1", "refund time?", em)
	require.NoError(t, err)

	require.Len(t, em.sources, 1)
	require.Len(t, em.sources[0], 1)
	assert.Equal(t, 1, em.sources[0][0].Ordinal)
	assert.Equal(t, "sop.pdf", em.sources[0][0].Filename)
	assert.Equal(t, []string{"Refunds ", "take ", "5 days."}, em.texts)
	assert.Equal(t, 1, em.done)
	assert.Contains(t, streamer.gotBlock, "Source ID: 1")
	repo.AssertExpectations(t)
}

func TestAsk_AnonymousLeavesNoTranscript(t *testing.T) {
	retriever := new(MockRetriever)
	repo := new(MockRepo)
	streamer := &fakeStreamer{fragments: []string{"hi"}}

	retriever.On("Retrieve", mock.Anything, "", "q").Return([]vector.Match{}, nil)

	svc := NewService(retriever, streamer, repo, new(MockCounter))
	err := svc.Ask(context.Background(), "", "q", &captureEmitter{})
	require.NoError(t, err)

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAsk_RetrievalFailureStreamsWithoutSources(t *testing.T) {
	retriever := new(MockRetriever)
	repo := new(MockRepo)
	streamer := &fakeStreamer{fragments: []string{"answer"}}
	em := &captureEmitter{}

	retriever.On("Retrieve", mock.Anything, "user-1", "q").Return(nil, errors.New("index offline"))
	repo.On("Create", mock.Anything, "user-1", RoleUser, "q").Return(nil)
	repo.On("Create", mock.Anything, "user-1", RoleBot, "answer").Return(nil)

	svc := NewService(retriever, streamer, repo, new(MockCounter))
	err := svc.Ask(context.Background(), "user-1", "q", em)
	require.NoError(t, err)

	require.Len(t, em.sources, 1)
	assert.Empty(t, em.sources[0])
	assert.Empty(t, streamer.gotBlock)
	assert.Equal(t, 1, em.done)
}

func TestAsk_EmitterFailureSkipsBotEntry(t *testing.T) {
	retriever := new(MockRetriever)
	repo := new(MockRepo)
	streamer := &fakeStreamer{fragments: []string{"answer"}}
	em := &captureEmitter{sourcesErr: errors.New("connection closed")}

	retriever.On("Retrieve", mock.Anything, "user-1", "q").Return([]vector.Match{}, nil)
	repo.On("Create", mock.Anything, "user-1", RoleUser, "q").Return(nil)

	svc := NewService(retriever, streamer, repo, new(MockCounter))
	err := svc.Ask(context.Background(), "user-1", "q", em)
	require.Error(t, err)

	assert.Empty(t, em.texts)
	repo.AssertNotCalled(t, "Create", mock.Anything, "user-1", RoleBot, mock.Anything)
}

func TestAsk_CanceledStreamSkipsBotEntry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	retriever := new(MockRetriever)
	repo := new(MockRepo)
	streamer := &fakeStreamer{fragments: []string{"partial ", "answer"}}
	em := &captureEmitter{}

	retriever.On("Retrieve", mock.Anything, "user-1", "q").Return([]vector.Match{}, nil)
	repo.On("Create", mock.Anything, "user-1", RoleUser, "q").Return(nil)

	svc := NewService(retriever, streamer, repo, new(MockCounter))
	cancel()
	err := svc.Ask(ctx, "user-1", "q", em)
	require.NoError(t, err)

	repo.AssertNotCalled(t, "Create", mock.Anything, "user-1", RoleBot, mock.Anything)
}

func TestHistory_ReturnsEntriesWhileCorpusExists(t *testing.T) {
	repo := new(MockRepo)
	counter := new(MockCounter)

	entries := []Entry{{Role: RoleUser, Content: "q"}, {Role: RoleBot, Content: "a"}}
	counter.On("CountByOwner", mock.Anything, "user-1").Return(12, nil)
	repo.On("History", mock.Anything, "user-1").Return(entries, nil)

	svc := NewService(new(MockRetriever), &fakeStreamer{}, repo, counter)
	got, err := svc.History(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestHistory_EmptyCorpusPurgesTranscript(t *testing.T) {
	repo := new(MockRepo)
	counter := new(MockCounter)

	counter.On("CountByOwner", mock.Anything, "user-1").Return(0, nil)
	repo.On("DeleteByOwner", mock.Anything, "user-1").Return(nil)

	svc := NewService(new(MockRetriever), &fakeStreamer{}, repo, counter)
	got, err := svc.History(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, got)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "History", mock.Anything, mock.Anything)
}
