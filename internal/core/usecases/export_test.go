package usecases

import "github.com/doteapp/dote/internal/core/domain"

// SetRebuildFunc replaces the territory rebuild step.
func (s *TerritoryService) SetRebuildFunc(f func(dogID string, hulls []domain.Polygon) (*domain.Territory, int)) {
	s.rebuild = f
}
