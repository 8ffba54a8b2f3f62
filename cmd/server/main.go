// main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/localvec"

	"github.com/ZanzyTHEbar/medgraph-genkit"
	"github.com/ZanzyTHEbar/medgraph-genkit/internal/adapters"
	"github.com/ZanzyTHEbar/medgraph-genkit/internal/cache"
	"github.com/ZanzyTHEbar/medgraph-genkit/internal/kg"
	"github.com/ZanzyTHEbar/medgraph-genkit/internal/prompt"
)

// seedPassages is a small built-in corpus for local runs. A production
// deployment indexes its own document set instead.
var seedPassages = map[string]string{
	"avf-basics":      "An arteriovenous fistula (AVF) is a surgical connection between an artery and a vein, typically created in the forearm to provide durable vascular access for hemodialysis. The radial artery to cephalic vein configuration is the most common.",
	"avf-maturation":  "After creation, an AVF matures over six to eight weeks as the outflow vein dilates and arterializes. Maturation is assessed with duplex ultrasound by measuring volume flow and vein diameter.",
	"steal-syndrome":  "Dialysis access steal syndrome occurs when the fistula diverts too much arterial inflow away from the hand, causing ischemic symptoms such as pain, pallor, and in severe cases tissue loss.",
	"carotid-duplex":  "Extracranial cerebrovascular duplex examination evaluates the common, internal, and external carotid arteries. Peak systolic velocity and the ICA/CCA ratio are the primary criteria for grading stenosis severity.",
	"access-stenosis": "Stenosis is the most common cause of hemodialysis access dysfunction. Surveillance with duplex ultrasound detects elevated velocities at the stenotic segment before the access thromboses.",
}

// demoQuestions exercises each answer strategy during local testing.
var demoQuestions = []string{
	"What is an arteriovenous fistula and why is it created?",
	"What does the ICA/CCA ratio evaluate?",
	"What causes steal phenomenon after fistula creation?",
	"What is the best treatment for glioblastoma?", // expected to fall back
}

func main() {
	ctx := context.Background()

	// Ensure GEMINI_API_KEY environment variable is set
	if os.Getenv("GEMINI_API_KEY") == "" {
		log.Fatal("GEMINI_API_KEY environment variable not set.")
	}

	// Initialize Genkit with the Google AI plugin via the prompt registry
	registry, err := prompt.NewRegistry(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}),
		genkit.WithDefaultModel("googleai/gemini-2.0-flash"),
	)
	if err != nil {
		log.Fatal("Genkit initialization failed: ", err)
	}
	g := registry.Genkit()

	synthesisPrompt, err := registry.DefineSynthesisPrompt()
	if err != nil {
		log.Fatal("Failed to define synthesis prompt: ", err)
	}

	// --- Knowledge graph ---
	kgPath := os.Getenv("KG_FILE_PATH")
	if kgPath == "" {
		kgPath = "data/medical_kg.yaml"
	}
	graph, err := kg.Load(kgPath)
	if err != nil {
		log.Fatal("Failed to load knowledge graph: ", err)
	}
	log.Printf("Knowledge graph loaded (nodes: %d, edges: %d, path: %s)", graph.NodeCount(), graph.EdgeCount(), kgPath)

	graphQuerier := adapters.NewKGQuerier(graph)
	extractor := adapters.NewLabelIndexExtractor(graphQuerier.Index())

	// --- Vector store ---
	if err := localvec.Init(); err != nil {
		log.Fatal("Failed to initialize local vector store: ", err)
	}
	embedder := googlegenai.GoogleAIEmbedder(g, "text-embedding-004")
	indexer, vecRetriever, err := localvec.DefineIndexerAndRetriever(g, "medDocs", localvec.Config{Embedder: embedder})
	if err != nil {
		log.Fatal("Failed to define vector retriever: ", err)
	}

	docs := make([]*ai.Document, 0, len(seedPassages))
	for id, text := range seedPassages {
		docs = append(docs, ai.DocumentFromText(text, map[string]any{"id": id}))
	}
	if err := ai.Index(ctx, indexer, ai.WithDocs(docs...)); err != nil {
		log.Fatal("Failed to index seed passages: ", err)
	}
	log.Printf("Seed corpus indexed (documents: %d)", len(docs))

	retriever := adapters.NewVectorStoreRetriever(vecRetriever, adapters.WithMaxResults(5))

	// --- Synthesis flow ---
	synthFlow := genkit.DefineFlow(g, "synthesizeAnswer",
		func(ctx context.Context, input *adapters.SynthInput) (string, error) {
			resp, err := synthesisPrompt.Execute(ctx,
				ai.WithInput(map[string]any{
					"question": input.Question,
					"evidence": strings.Join(input.Evidence, "\n"),
				}),
			)
			if err != nil {
				return "", fmt.Errorf("synthesis prompt execution failed: %w", err)
			}
			return resp.Text(), nil
		},
	)

	// --- Assemble the runtime ---
	mg, err := medgraph.New(
		medgraph.WithRetriever(retriever),
		medgraph.WithGraphQuerier(graphQuerier),
		medgraph.WithEntityExtractor(extractor),
		medgraph.WithSynthesizer(adapters.NewGenkitSynthesizerAdapter(synthFlow)),
		medgraph.WithFallback(adapters.NewCannedFallback()),
		medgraph.WithAnswerCache(cache.NewInMemoryCache(10*time.Minute)),
	)
	if err != nil {
		log.Fatal("Failed to assemble medgraph runtime: ", err)
	}
	defer mg.Close()

	// --- Main answering flow ---
	_ = genkit.DefineFlow(g, "medgraphAnswerFlow",
		func(ctx context.Context, question string) (*medgraph.FinalAnswer, error) {
			return mg.Answer(ctx, medgraph.Question{Text: question})
		},
	)

	if os.Getenv("RUN_DEMO") != "" {
		runDemo(ctx, mg)
	}

	log.Println("Genkit initialized successfully. MedGraph flows defined.")
	log.Println(`To run: genkit flow run medgraphAnswerFlow '"What is an arteriovenous fistula?"'`)
	// Keep the application running (e.g., for local testing with genkit start)
	select {}
}

// runDemo answers the built-in questions once, printing answers, strategies
// and confidences.
func runDemo(ctx context.Context, mg *medgraph.MedGraph) {
	for _, question := range demoQuestions {
		answer, err := mg.Answer(ctx, medgraph.Question{Text: question})
		if err != nil {
			log.Printf("Demo question failed (%q): %v", question, err)
			continue
		}
		log.Printf("Q: %s\nA (%s, confidence %.2f): %s\n", question, answer.Strategy, answer.Confidence, answer.Text)
	}
	snapshot := mg.Metrics()
	log.Printf("Demo complete (questions: %d, accepted: %d, fallbacks: %d)",
		snapshot.TotalQuestions, snapshot.Accepted, snapshot.Fallbacks)
}
