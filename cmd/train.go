package cmd

import (
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mdjhnsn/scrn/IO"
	"github.com/mdjhnsn/scrn/optimizations"
	"github.com/mdjhnsn/scrn/scrn"
	"github.com/mdjhnsn/scrn/utils"
)

// EpochStats is handed to the observer after every epoch.
type EpochStats struct {
	Epoch        int
	TrainTokLoss float64
	TrainPPL     float64
	Accuracy     float64
	EvalPPL      float64
	LR           float64
	Duration     time.Duration
}

// TrainOptions configures one training run. Observer is optional; the
// loop calls it after the epoch metrics are in, before early stopping
// is considered.
type TrainOptions struct {
	CheckpointDir string
	Workers       int
	Observer      func(EpochStats)
}

// TrainResult reports how a run ended.
type TrainResult struct {
	Epochs       int
	BestAccuracy float64
	BestPath     string
	StopReason   string
}

// trainNetwork runs the full epoch loop: shuffle, batch, accumulate
// gradients across workers, clip, Adam step, evaluate, checkpoint,
// early stop. The network is updated in place; the best checkpoint by
// eval accuracy lands in CheckpointDir.
func trainNetwork(net *scrn.Network, trainSet, valSet []IO.Sample, rng *rand.Rand, opts TrainOptions) (TrainResult, error) {
	cfg := net.Cfg
	opt := optimizations.NewAdamState(net.ParamList())

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ckptDir := opts.CheckpointDir
	if ckptDir == "" {
		ckptDir = "models"
	}

	var res TrainResult
	bestAccuracy := -1.0
	noImprovementCount := 0
	adamStep := 0

	fmt.Printf("Train: %d samples  Eval: %d samples\n", len(trainSet), len(valSet))

	for e := 0; e < cfg.MaxEpochs; e++ {
		start := time.Now()
		rng.Shuffle(len(trainSet), func(i, j int) {
			trainSet[i], trainSet[j] = trainSet[j], trainSet[i]
		})

		var totalTokenLoss float64
		var tokenCounter int
		var lr float64

		for _, batch := range IO.Batches(trainSet, cfg.BatchSize) {
			adamStep++
			lr = optimizations.LRSchedule(adamStep, cfg.WarmupSteps, cfg.DecaySteps, cfg.LR)

			batchLoss, grads, err := batchGrads(net, batch, workers)
			if err != nil {
				return res, err
			}
			grads.Scale(1 / float64(len(batch)))
			if cfg.GradClip > 0 {
				utils.ClipGrads(cfg.GradClip, grads.List()...)
			}
			opt.Step(net.ParamList(), grads.List(), lr,
				cfg.AdamBeta1, cfg.AdamBeta2, cfg.AdamEps, cfg.WeightDecay)

			totalTokenLoss += batchLoss
			tokenCounter += len(batch)
		}

		avgTokLoss := 0.0
		trainPPL := 0.0
		if tokenCounter > 0 {
			avgTokLoss = totalTokenLoss / float64(tokenCounter)
			trainPPL = math.Exp(avgTokLoss)
		}

		accuracy, evalPPL, err := evaluateNetwork(net, valSet)
		if err != nil {
			return res, err
		}
		fmt.Printf(
			"Epoch %d - Acc: %.4f, TrainTokLoss: %.4f, TrainPPL: %.1f, EvalPPL: %.1f, Time: %v\n",
			e, accuracy, avgTokLoss, trainPPL, evalPPL, time.Since(start),
		)

		if opts.Observer != nil {
			opts.Observer(EpochStats{
				Epoch:        e,
				TrainTokLoss: avgTokLoss,
				TrainPPL:     trainPPL,
				Accuracy:     accuracy,
				EvalPPL:      evalPPL,
				LR:           lr,
				Duration:     time.Since(start),
			})
		}
		res.Epochs = e + 1

		alreadySaved := false
		if accuracy > bestAccuracy+cfg.ImprovementThreshold {
			bestAccuracy = accuracy
			best := filepath.Join(ckptDir, "best_model.gob")
			if err := IO.SaveCheckpoint(net, best); err != nil {
				return res, err
			}
			res.BestPath = best
			res.BestAccuracy = bestAccuracy
			noImprovementCount = 0
			alreadySaved = true
		} else {
			noImprovementCount++
		}

		// Saves every X epochs
		if cfg.SaveEpochNumber > 0 && (e+1)%cfg.SaveEpochNumber == 0 && !alreadySaved {
			if err := IO.SaveCheckpoint(net, filepath.Join(ckptDir, "last_epoch.gob")); err != nil {
				return res, err
			}
			fmt.Printf("Saved checkpoint at epoch %d\n", e+1)
		}

		if noImprovementCount >= cfg.Patience {
			fmt.Println("\nStopping training early due to lack of improvement in accuracy.")
			res.StopReason = "patience"
			break
		}

		if avgTokLoss < cfg.Epsilon {
			fmt.Println("\nStopping training early due to loss being too small.")
			res.StopReason = "converged"
			break
		}
	}

	if res.StopReason == "" {
		res.StopReason = "max_epochs"
	}
	if res.BestPath == "" {
		// never beat the bar; keep the final weights anyway
		last := filepath.Join(ckptDir, "last_epoch.gob")
		if err := IO.SaveCheckpoint(net, last); err != nil {
			return res, err
		}
		res.BestPath = last
	}
	return res, nil
}

// batchGrads fans the batch out over workers, each accumulating into
// its own gradient set, then merges. Forward and Backward only read the
// network weights, so shards can run concurrently.
func batchGrads(net *scrn.Network, batch []IO.Sample, workers int) (float64, *scrn.Grads, error) {
	if workers > len(batch) {
		workers = len(batch)
	}
	if workers < 1 {
		workers = 1
	}

	shardGrads := make([]*scrn.Grads, workers)
	shardLoss := make([]float64, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			acc := scrn.NewGrads(net.Cfg)
			var lossSum float64
			for i := w; i < len(batch); i += workers {
				s := batch[i]
				cache, err := net.Forward(s.Window)
				if err != nil {
					return err
				}
				gr, loss, err := net.Backward(cache, s.Target)
				if err != nil {
					return err
				}
				acc.Accumulate(gr)
				lossSum += loss
			}
			shardGrads[w] = acc
			shardLoss[w] = lossSum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	total := shardGrads[0]
	loss := shardLoss[0]
	for w := 1; w < workers; w++ {
		total.Accumulate(shardGrads[w])
		loss += shardLoss[w]
	}
	return loss, total, nil
}

// evaluateNetwork scores held-out samples: next-token accuracy under
// argmax plus perplexity from the mean cross entropy.
func evaluateNetwork(net *scrn.Network, valSet []IO.Sample) (accuracy, evalPPL float64, err error) {
	if len(valSet) == 0 {
		return 0, 0, nil
	}
	var correct int
	var ceSum float64
	for _, s := range valSet {
		probs, err := net.Predict(s.Window)
		if err != nil {
			return 0, 0, err
		}
		if utils.ArgmaxVec(probs) == s.Target {
			correct++
		}
		ceSum += -math.Log(probs.At(s.Target, 0) + 1e-12)
	}
	accuracy = float64(correct) / float64(len(valSet))
	evalPPL = math.Exp(ceSum / float64(len(valSet)))
	return accuracy, evalPPL, nil
}
