package memory

import (
	"context"
	"sort"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

type CreditRepository struct {
	a access
}

func (r *CreditRepository) CreateBatch(_ context.Context, batch *model.CreditBatch) error {
	now := r.a.now().Now()
	return r.a.do(func(st *state) error {
		st.nextBatchID++
		batch.ID = st.nextBatchID
		batch.CreatedAt = now
		st.batches[batch.ID] = copyBatch(batch)
		return nil
	})
}

func (r *CreditRepository) GetBatch(_ context.Context, id int64) (*model.CreditBatch, error) {
	var out *model.CreditBatch
	err := r.a.do(func(st *state) error {
		b, ok := st.batches[id]
		if !ok {
			return model.ErrBatchNotFound
		}
		out = copyBatch(b)
		return nil
	})
	return out, err
}

func (r *CreditRepository) GetBatchForUpdate(ctx context.Context, id int64) (*model.CreditBatch, error) {
	return r.GetBatch(ctx, id)
}

// UpdateBatch mirrors the table CHECK on remaining.
func (r *CreditRepository) UpdateBatch(_ context.Context, batch *model.CreditBatch) error {
	if batch.Remaining < 0 || batch.Remaining > batch.Quantity {
		return errRemainingOutOfRange
	}
	return r.a.do(func(st *state) error {
		if _, ok := st.batches[batch.ID]; !ok {
			return model.ErrBatchNotFound
		}
		st.batches[batch.ID] = copyBatch(batch)
		return nil
	})
}

func (r *CreditRepository) ListBatches(_ context.Context, studentID int64, types []model.CardType, _ bool) ([]*model.CreditBatch, error) {
	want := make(map[model.CardType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	var out []*model.CreditBatch
	err := r.a.do(func(st *state) error {
		for _, b := range st.batches {
			if b.StudentID != studentID {
				continue
			}
			if len(want) > 0 && !want[b.CardType] {
				continue
			}
			out = append(out, copyBatch(b))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *CreditRepository) LockStudent(context.Context, int64) error {
	return nil
}

func (r *CreditRepository) SumEarnedCancelCards(_ context.Context, studentID int64) (int, error) {
	total := 0
	err := r.a.do(func(st *state) error {
		for _, b := range st.batches {
			if b.StudentID == studentID && b.CardType == model.CardTypeCancel && b.Source == model.BatchSourceEarned {
				total += b.Quantity
			}
		}
		return nil
	})
	return total, err
}

func (r *CreditRepository) AppendRecord(_ context.Context, record *model.ConsumptionRecord) error {
	now := r.a.now().Now()
	return r.a.do(func(st *state) error {
		st.nextRecordID++
		record.ID = st.nextRecordID
		record.CreatedAt = now
		c := *record
		st.records = append(st.records, &c)
		return nil
	})
}

func (r *CreditRepository) ListRecords(_ context.Context, studentID int64) ([]*model.ConsumptionRecord, error) {
	var out []*model.ConsumptionRecord
	err := r.a.do(func(st *state) error {
		for _, rec := range st.records {
			if rec.StudentID == studentID {
				c := *rec
				out = append(out, &c)
			}
		}
		return nil
	})
	return out, err
}
