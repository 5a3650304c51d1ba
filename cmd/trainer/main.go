// Command trainer runs the morepork classifier training experiment.
//
// The trainer repeats independent training runs of a ResNet + GRU binary
// classifier that separates morepork calls from background noise. Network
// layers and optimisation live in an external training service; the trainer
// drives it one epoch at a time, lowers the learning rate on val_loss plateaus,
// decides which epochs are checkpointed, and records each run.
//
// Per run it writes into {base-path}/{experiment}/weights{i}:
//   - model-{epoch}-{val_binary_accuracy} checkpoints (written by the service)
//   - history.png with accuracy and loss curves
//
// and on the first run model.txt and model.json into {base-path}/{experiment}.
// The last stdout line is the average best validation accuracy.
//
// Usage:
//
//	trainer run \
//	  --trainer-url=http://trainer:8500 \
//	  --base-path=/data/models \
//	  --trainings=20 --epochs=1000
//
//	trainer scores --tp=5 --fp=5 --fn=0
//	trainer version
//
// Environment variables:
//
//	TRAINER_URL          - Training service URL (required)
//	TRAINER_HEALTH_ADDR  - gRPC health address checked before training
//	SAMPLES              - Sample source: file or http (default: file)
//	SAMPLES_*            - Sample source settings (SAMPLES_PATH, SAMPLES_URL, ...)
//	BASE_PATH            - Output directory (default: .)
//	TRAININGS            - Number of runs (default: 20)
//	EPOCHS               - Epochs per run (default: 1000)
//	STORAGE              - Run storage: memory, redis or sqlite (default: memory)
//	LISTEN               - Status server address (default: disabled)
//	LOG_LEVEL            - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT           - Logging format: text, json (default: text)
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
