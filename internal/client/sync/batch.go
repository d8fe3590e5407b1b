package sync

import (
	"cmp"
	"slices"

	"github.com/iudanet/famsync/internal/models"
)

// groupByType orders a drained batch by entity type. Types keep the order of
// their first appearance and the sort is stable, so mutations of one entity
// stay in sequence order.
func groupByType(batch []*models.MutationRecord) []*models.MutationRecord {
	rank := make(map[models.EntityType]int)
	for _, m := range batch {
		if _, ok := rank[m.EntityType]; !ok {
			rank[m.EntityType] = len(rank)
		}
	}

	out := slices.Clone(batch)
	slices.SortStableFunc(out, func(a, b *models.MutationRecord) int {
		return cmp.Compare(rank[a.EntityType], rank[b.EntityType])
	})
	return out
}

func seqsOf(batch []*models.MutationRecord) []uint64 {
	seqs := make([]uint64, 0, len(batch))
	for _, m := range batch {
		seqs = append(seqs, m.Seq)
	}
	return seqs
}
