package chess

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/ascii-chess/internal/domain"
)

// memrepo keeps the archive in process memory when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	gamesByID      map[int64]*domain.ChessGame
	gamesByPlayer  map[string][]*domain.ChessGame
	gamesBySession map[string]*domain.ChessGame

	profiles map[string]*domain.ChessProfile
}

func NewMemoryRepository() Repository {
	return &memrepo{
		gamesByID:      make(map[int64]*domain.ChessGame),
		gamesByPlayer:  make(map[string][]*domain.ChessGame),
		gamesBySession: make(map[string]*domain.ChessGame),
		profiles:       make(map[string]*domain.ChessProfile),
	}
}

func (m *memrepo) InsertGame(ctx context.Context, game *domain.ChessGame) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateGame
	}
	key := strings.TrimSpace(game.SessionUUID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.gamesBySession[key]; exists {
		return 0, ErrDuplicateGame
	}

	m.nextID++
	stored := cloneGame(game)
	stored.ID = m.nextID

	m.gamesByID[stored.ID] = stored
	m.gamesBySession[key] = stored
	player := strings.TrimSpace(game.PlayerName)
	m.gamesByPlayer[player] = append(m.gamesByPlayer[player], stored)

	return stored.ID, nil
}

func (m *memrepo) GetRecentGames(ctx context.Context, playerName string, limit int) ([]*domain.ChessGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.gamesByPlayer[strings.TrimSpace(playerName)]
	items := make([]*domain.ChessGame, 0, len(list))
	for _, g := range list {
		items = append(items, cloneGame(g))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit <= 0 {
		limit = 10
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) GetGame(ctx context.Context, id int64) (*domain.ChessGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gamesByID[id]
	if !ok {
		return nil, nil
	}
	return cloneGame(g), nil
}

func (m *memrepo) GetGameBySession(ctx context.Context, sessionUUID string) (*domain.ChessGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.gamesBySession[strings.TrimSpace(sessionUUID)]; ok {
		return cloneGame(g), nil
	}
	return nil, nil
}

func (m *memrepo) GetProfile(ctx context.Context, playerName string) (*domain.ChessProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[strings.TrimSpace(playerName)]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (m *memrepo) UpsertProfile(ctx context.Context, profile *domain.ChessProfile) error {
	if profile == nil {
		return nil
	}
	key := strings.TrimSpace(profile.PlayerName)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *profile
	if existing, ok := m.profiles[key]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.profiles[key] = &stored
	return nil
}

func cloneGame(g *domain.ChessGame) *domain.ChessGame {
	copied := *g
	copied.MovesUCI = append([]string(nil), g.MovesUCI...)
	copied.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &copied
}
