package intake

// Symptoms offered in step 3, in display order.
var Symptoms = []string{
	"Memory Loss",
	"Disorientation (Time/Place)",
	"Language Difficulties (Aphasia)",
	"Impaired Judgment",
	"Mood Changes",
	"Difficulty with Complex Tasks",
	"Behavioral Changes (e.g., agitation, apathy)",
	"Visual-Spatial Difficulties",
	"Motor Symptoms",
	"Executive Dysfunction",
	"NO symptom",
}

// StatusMessages rotate on screen while a submission is in flight.
var StatusMessages = []string{
	"Initializing RegNet-150 model...",
	"Processing MRI scan data...",
	"Running TxGemma symptom analysis...",
	"Fusing multimodal predictions...",
	"Generating AI diagnosis report...",
	"Finalizing recommendations...",
}

func IsKnownSymptom(label string) bool {
	for _, s := range Symptoms {
		if s == label {
			return true
		}
	}
	return false
}
