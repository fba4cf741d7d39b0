package board

import (
	"strconv"

	"sprintboard/internal/ids"
	"sprintboard/internal/models"
)

// TaskLookup finds a cached task by string-normalized id.
type TaskLookup interface {
	Lookup(id string) (models.Task, bool)
}

// TaskCache is the board-local task cache keyed by string id, so numeric and
// string ids of the same task hit the same entry.
type TaskCache map[string]models.Task

// NewTaskCache indexes tasks by id.
func NewTaskCache(tasks ...models.Task) TaskCache {
	c := make(TaskCache, len(tasks))
	for _, t := range tasks {
		c.Put(t)
	}
	return c
}

func (c TaskCache) Lookup(id string) (models.Task, bool) {
	t, ok := c[ids.Key(id)]
	return t, ok
}

func (c TaskCache) Put(t models.Task) {
	c[strconv.FormatInt(t.ID, 10)] = t
}

// Clone copies the index; tasks are values.
func (c TaskCache) Clone() TaskCache {
	out := make(TaskCache, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Buckets are the three materialized columns of a sprint board.
type Buckets struct {
	Todo       []Card `json:"todo"`
	InProgress []Card `json:"in_progress"`
	Done       []Card `json:"done"`
}

// Bucketize materializes the three columns of taskIDs. Ids are normalized and
// de-duplicated per bucket; unknown tasks become placeholders. An id listed
// under several keys is kept only in the last one processed.
func Bucketize(taskIDs models.TaskIDs, cache TaskLookup, cat Catalog) Buckets {
	perKey := make([][]string, len(models.BucketKeys))
	owner := make(map[string]int)
	for i, key := range models.BucketKeys {
		perKey[i] = ids.Unique(ids.Normalize(taskIDs[key]))
		for _, id := range perKey[i] {
			owner[id] = i
		}
	}

	lists := make([][]Card, len(models.BucketKeys))
	for i, key := range models.BucketKeys {
		status := models.StatusForBucket(key)
		lists[i] = make([]Card, 0, len(perKey[i]))
		for _, id := range perKey[i] {
			if owner[id] != i {
				continue
			}
			if cache != nil {
				if task, ok := cache.Lookup(id); ok {
					lists[i] = append(lists[i], cat.Project(task, status))
					continue
				}
			}
			lists[i] = append(lists[i], placeholder(id, status))
		}
	}

	return Buckets{Todo: lists[0], InProgress: lists[1], Done: lists[2]}
}

// Conflicts returns the ids that appear under more than one bucket key.
func Conflicts(taskIDs models.TaskIDs) []string {
	seen := make(map[string]int)
	var out []string
	for _, key := range models.BucketKeys {
		for _, id := range ids.Unique(ids.Normalize(taskIDs[key])) {
			seen[id]++
			if seen[id] == 2 {
				out = append(out, id)
			}
		}
	}
	return out
}

// Column returns the cards of the bucket for status.
func (b Buckets) Column(status string) []Card {
	switch status {
	case models.StatusInProgress:
		return b.InProgress
	case models.StatusDone:
		return b.Done
	default:
		return b.Todo
	}
}

// Locate scans all three columns for id.
func (b Buckets) Locate(id string) (Card, bool) {
	for _, col := range [][]Card{b.Todo, b.InProgress, b.Done} {
		for _, c := range col {
			if ids.Equal(c.ID, id) {
				return c, true
			}
		}
	}
	return Card{}, false
}

// Placeholders lists the ids of cards still waiting for their task.
func (b Buckets) Placeholders() []string {
	var out []string
	for _, col := range [][]Card{b.Todo, b.InProgress, b.Done} {
		for _, c := range col {
			if c.Placeholder {
				out = append(out, c.ID)
			}
		}
	}
	return out
}

// Len counts the cards on the board.
func (b Buckets) Len() int {
	return len(b.Todo) + len(b.InProgress) + len(b.Done)
}

// Clone returns buckets whose slices can be modified independently.
func (b Buckets) Clone() Buckets {
	return Buckets{
		Todo:       append(make([]Card, 0, len(b.Todo)), b.Todo...),
		InProgress: append(make([]Card, 0, len(b.InProgress)), b.InProgress...),
		Done:       append(make([]Card, 0, len(b.Done)), b.Done...),
	}
}

// withCard removes id from every column and appends card to the column of
// card.Status, as one value replacement.
func (b Buckets) withCard(card Card) Buckets {
	drop := func(col []Card) []Card {
		out := make([]Card, 0, len(col)+1)
		for _, c := range col {
			if !ids.Equal(c.ID, card.ID) {
				out = append(out, c)
			}
		}
		return out
	}
	next := Buckets{Todo: drop(b.Todo), InProgress: drop(b.InProgress), Done: drop(b.Done)}
	switch card.Status {
	case models.StatusInProgress:
		next.InProgress = append(next.InProgress, card)
	case models.StatusDone:
		next.Done = append(next.Done, card)
	default:
		next.Todo = append(next.Todo, card)
	}
	return next
}

// replaceCard swaps card in place, keeping its column and position.
func (b Buckets) replaceCard(card Card) Buckets {
	next := b.Clone()
	for _, col := range [][]Card{next.Todo, next.InProgress, next.Done} {
		for i := range col {
			if ids.Equal(col[i].ID, card.ID) {
				card.Status = col[i].Status
				col[i] = card
				return next
			}
		}
	}
	return next
}
