package embedding

import (
	"context"
	"math"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"github.com/localmind/assistant/internal/corerr"
)

// ONNXBackend runs a local sentence-embedding model through onnxruntime_go,
// tokenized with sugarme/tokenizer. Grounded on the onnxruntime_go +
// sugarme/tokenizer pairing named in the hurttlocker-cortex manifest, the
// only pack entry that wires both a tokenizer and an ONNX runtime together.
type ONNXBackend struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tok       *tokenizer.Tokenizer
	model     Model
}

// NewONNXBackend loads the ONNX model at modelPath and the tokenizer config
// at tokenizerPath. dimension and maxTokens describe the model's fixed
// output shape (spec.md's vector.embedding_dimension, default 384 for
// all-MiniLM-L6-v2, the same default the original_source engine falls back
// to for an unrecognized model name).
func NewONNXBackend(modelPath, tokenizerPath, modelName string, dimension, maxTokens int) (*ONNXBackend, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, corerr.Wrap(corerr.BackendUnavailable, "initialize onnxruntime", err)
	}

	tok, err := pretrained.FromFile(tokenizerPath)
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendUnavailable, "load tokenizer "+tokenizerPath, err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"last_hidden_state"},
		nil)
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendUnavailable, "load onnx model "+modelPath, err)
	}

	if dimension <= 0 {
		dimension = 384
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if modelName == "" {
		modelName = "all-MiniLM-L6-v2"
	}

	return &ONNXBackend{
		session: session,
		tok:     tok,
		model:   Model{Name: modelName, Dimension: dimension, MaxSequenceTokens: maxTokens},
	}, nil
}

func (b *ONNXBackend) Model() Model { return b.model }

// Embed tokenizes text, runs the session, and mean-pools + L2-normalizes
// the token embeddings into a single fixed-size vector — the standard
// sentence-transformers pooling strategy for a MiniLM-class model.
func (b *ONNXBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	truncated := truncateWords(text, b.model.MaxSequenceTokens/2)

	b.mu.Lock()
	defer b.mu.Unlock()

	encoding, err := b.tok.EncodeSingle(truncated, false)
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "tokenize text", err)
	}

	ids := toInt64(encoding.Ids)
	mask := toInt64(encoding.AttentionMask)
	seqLen := len(ids)

	inputIDs, err := ort.NewTensor(ort.NewShape(1, int64(seqLen)), ids)
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "build input tensor", err)
	}
	defer inputIDs.Destroy()

	attentionMask, err := ort.NewTensor(ort.NewShape(1, int64(seqLen)), mask)
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "build attention mask tensor", err)
	}
	defer attentionMask.Destroy()

	outputShape := ort.NewShape(1, int64(seqLen), int64(b.model.Dimension))
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "allocate output tensor", err)
	}
	defer output.Destroy()

	if err := b.session.Run([]ort.Value{inputIDs, attentionMask}, []ort.Value{output}); err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "run onnx session", err)
	}

	return meanPoolAndNormalize(output.GetData(), seqLen, b.model.Dimension, mask), nil
}

func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if maxWords <= 0 || len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ")
}

func toInt64(vals []int) []int64 {
	out := make([]int64, len(vals))
	for i, v := range vals {
		out[i] = int64(v)
	}
	return out
}

// meanPoolAndNormalize averages token vectors weighted by the attention
// mask, then L2-normalizes the result — the pooling strategy MiniLM-family
// sentence-transformers models expect downstream.
func meanPoolAndNormalize(hidden []float32, seqLen, dim int, mask []int64) []float32 {
	sums := make([]float32, dim)
	var count float32
	for t := 0; t < seqLen; t++ {
		if mask[t] == 0 {
			continue
		}
		count++
		base := t * dim
		for d := 0; d < dim; d++ {
			sums[d] += hidden[base+d]
		}
	}
	if count == 0 {
		count = 1
	}
	for d := range sums {
		sums[d] /= count
	}

	var magnitude float64
	for _, v := range sums {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)
	if magnitude > 0 {
		for d := range sums {
			sums[d] = float32(float64(sums[d]) / magnitude)
		}
	}
	return sums
}
