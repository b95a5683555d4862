package labels

import (
	"sort"

	"github.com/nvr-ai/go-waste/waste"
	"github.com/pkg/errors"
)

// Built-in table names.
const (
	TableCOCO    = "coco"
	TableLLM     = "llm"
	TableEWaste  = "ewaste"
	TableOrganic = "organic"
	// TableNone starts from an empty table so only configured labels apply.
	TableNone = "none"
)

// COCOClasses are the 80 COCO class names in model output order.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

const (
	eUseful    = string(waste.EWasteUseful)
	eNotUseful = string(waste.EWasteNotUseful)
	nonOrganic = string(waste.NonOrganic)
	compost    = string(waste.Compost)
	biogas     = string(waste.Biogas)
)

// coco covers every COCO class. People, animals, vehicles and fixtures are bound to the fallback.
var coco = Table{
	"person": FallbackTarget, "bicycle": eUseful, "car": FallbackTarget, "motorcycle": FallbackTarget,
	"airplane": FallbackTarget, "bus": FallbackTarget, "train": FallbackTarget, "truck": FallbackTarget,
	"boat": FallbackTarget,

	"bird": FallbackTarget, "cat": FallbackTarget, "dog": FallbackTarget, "horse": FallbackTarget,
	"sheep": FallbackTarget, "cow": FallbackTarget, "elephant": FallbackTarget, "bear": FallbackTarget,
	"zebra": FallbackTarget, "giraffe": FallbackTarget,

	"backpack": nonOrganic, "umbrella": nonOrganic, "handbag": nonOrganic, "tie": nonOrganic,
	"suitcase": nonOrganic, "frisbee": nonOrganic, "skis": nonOrganic, "snowboard": nonOrganic,
	"sports ball": nonOrganic, "kite": nonOrganic, "baseball bat": nonOrganic, "baseball glove": nonOrganic,
	"skateboard": nonOrganic, "surfboard": nonOrganic, "tennis racket": nonOrganic,

	"bottle": nonOrganic, "wine glass": nonOrganic, "cup": nonOrganic, "fork": nonOrganic,
	"knife": nonOrganic, "spoon": nonOrganic, "bowl": nonOrganic,

	"banana": compost, "apple": compost, "sandwich": biogas, "orange": compost, "broccoli": compost,
	"carrot": compost, "hot dog": biogas, "pizza": biogas, "donut": biogas, "cake": biogas,

	"chair": nonOrganic, "couch": nonOrganic, "potted plant": compost, "bed": nonOrganic,
	"dining table": nonOrganic, "toilet": nonOrganic,

	"tv": eNotUseful, "laptop": eUseful, "mouse": eNotUseful, "remote": eUseful, "keyboard": eNotUseful,
	"cell phone": eUseful, "microwave": eNotUseful, "oven": eNotUseful, "toaster": eNotUseful,
	"sink": nonOrganic, "refrigerator": eNotUseful,

	"book": nonOrganic, "clock": eUseful, "vase": nonOrganic, "scissors": nonOrganic,
	"teddy bear": nonOrganic, "hair drier": eNotUseful, "toothbrush": nonOrganic,

	"traffic light": eNotUseful, "fire hydrant": FallbackTarget, "stop sign": nonOrganic,
	"parking meter": eNotUseful, "bench": nonOrganic,
}

// llm is the answer vocabulary the label classifier prompt asks for.
var llm = Table{
	"E_WASTE_USEFUL":     eUseful,
	"E_WASTE_NOT_USEFUL": eNotUseful,
	"NON_ORGANIC":        nonOrganic,
	"BIOGAS":             biogas,
	"COMPOST":            compost,
	"UNIDENTIFIED":       FallbackTarget,
}

// ewaste is the vocabulary of the e-waste sub-classifier.
var ewaste = Table{
	"battery": eUseful, "mobile": eUseful, "cell phone": eUseful, "laptop": eUseful,
	"pcb": eUseful, "circuit board": eUseful, "hard drive": eUseful, "charger": eUseful,
	"remote": eUseful, "camera": eUseful,

	"keyboard": eNotUseful, "mouse": eNotUseful, "cable": eNotUseful, "bulb": eNotUseful,
	"television": eNotUseful, "tv": eNotUseful, "microwave": eNotUseful, "printer": eNotUseful,
	"washing machine": eNotUseful, "player": eNotUseful,
}

// organic is the vocabulary of the organic sub-classifier.
var organic = Table{
	"fruit": compost, "vegetable": compost, "fruits": compost, "vegetables": compost,
	"leaves": compost, "peel": compost, "eggshell": compost, "coffee grounds": compost,
	"paper": compost,

	"meat": biogas, "fish": biogas, "dairy": biogas, "cooked food": biogas,
	"bread": biogas, "rice": biogas, "food waste": biogas, "bones": biogas,
}

var builtin = map[string]Table{
	TableCOCO:    coco,
	TableLLM:     llm,
	TableEWaste:  ewaste,
	TableOrganic: organic,
}

// Builtin returns a copy of a built-in table.
//
// Arguments:
//   - name: The table name.
//
// Returns:
//   - Table: The table.
//   - error: ErrInvalidTable if no table has that name.
func Builtin(name string) (Table, error) {
	t, ok := builtin[name]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidTable, "no built-in table %q", name)
	}
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out, nil
}

// BuiltinNames lists the built-in table names.
func BuiltinNames() []string {
	out := make([]string, 0, len(builtin))
	for k := range builtin {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Load resolves a table by name, merging overrides on top. Override entries win.
//
// Arguments:
//   - taxonomy: The taxonomy targets must resolve in.
//   - name: Built-in table name. Empty or TableNone starts from an empty table.
//   - overrides: Extra or replacement entries, typically from configuration.
//
// Returns:
//   - *Mapper: The validated mapper.
//   - error: If the table is unknown or a target does not resolve.
func Load(taxonomy *waste.Taxonomy, name string, overrides Table) (*Mapper, error) {
	table := Table{}
	if name != "" && name != TableNone {
		t, err := Builtin(name)
		if err != nil {
			return nil, err
		}
		table = t
	}

	// Overrides replace entries by normalized key so "Cell_Phone" replaces "cell phone".
	for label, target := range overrides {
		key := Normalize(label)
		for existing := range table {
			if Normalize(existing) == key {
				delete(table, existing)
			}
		}
		table[label] = target
	}

	mapperName := name
	if mapperName == "" || mapperName == TableNone {
		mapperName = "custom"
	}
	return NewMapper(mapperName, taxonomy, table)
}
