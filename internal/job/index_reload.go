package job

import (
	"context"
	"os"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/plantdeck/plantdeck/internal/index"
	"github.com/plantdeck/plantdeck/internal/retrieval"
)

// IndexReloadJob watches the on-disk index pair and hot-swaps it into the
// retrieval engine when a rebuild lands. A failed load keeps the previous
// in-memory index serving.
type IndexReloadJob struct {
	engine        *retrieval.Engine
	entityPrefix  string
	passagePrefix string

	entityStamp  time.Time
	passageStamp time.Time
}

func NewIndexReloadJob(engine *retrieval.Engine, entityPrefix, passagePrefix string) *IndexReloadJob {
	return &IndexReloadJob{
		engine:        engine,
		entityPrefix:  entityPrefix,
		passagePrefix: passagePrefix,
	}
}

func (j *IndexReloadJob) Name() string {
	return "index_reload"
}

func (j *IndexReloadJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)

	if stamp, changed := indexStamp(j.entityPrefix, j.entityStamp); changed {
		ix, err := index.Load[index.EntityMeta](j.entityPrefix)
		if err != nil {
			logger.Error("reload entity index failed, keeping current",
				zap.String("prefix", j.entityPrefix), zap.Error(err))
		} else {
			j.engine.SetEntityIndex(ix)
			j.entityStamp = stamp
			logger.Info("entity index reloaded",
				zap.Int("rows", len(ix.Entries)), zap.String("model_version", ix.ModelVersion))
		}
	}

	if j.passagePrefix != "" {
		if stamp, changed := indexStamp(j.passagePrefix, j.passageStamp); changed {
			ix, err := index.Load[index.PassageMeta](j.passagePrefix)
			if err != nil {
				logger.Error("reload passage index failed, keeping current",
					zap.String("prefix", j.passagePrefix), zap.Error(err))
			} else {
				j.engine.SetPassageIndex(ix)
				j.passageStamp = stamp
				logger.Info("passage index reloaded",
					zap.Int("rows", len(ix.Entries)), zap.String("model_version", ix.ModelVersion))
			}
		}
	}
	return nil
}

// indexStamp reports the newest mtime of the vector/manifest pair and
// whether it moved past the previous stamp. A half-written pair does not
// trip the swap twice because the stamp only advances on successful load.
func indexStamp(prefix string, prev time.Time) (time.Time, bool) {
	vecInfo, err := os.Stat(prefix + ".vec")
	if err != nil {
		return prev, false
	}
	manInfo, err := os.Stat(prefix + ".json")
	if err != nil {
		return prev, false
	}
	stamp := vecInfo.ModTime()
	if manInfo.ModTime().After(stamp) {
		stamp = manInfo.ModTime()
	}
	return stamp, stamp.After(prev)
}
