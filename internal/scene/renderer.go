// Package scene turns a diagram artifact into a structured scene graph by
// instrumenting the script with a metadata epilogue, executing it in the
// sandbox, and validating the emitted JSON against an embedded schema.
package scene

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/diagram-weaver/internal/sandbox"
	"github.com/jonathan/diagram-weaver/internal/types"
)

//go:embed scene_schema.json
var sceneSchema string

// sceneFilename is where the instrumented script writes its scene graph,
// relative to the sandbox isolation root.
const sceneFilename = "scene.json"

// RenderError reports that the artifact failed during rendering. It carries
// the runtime diagnostic so callers can route the failure to the
// runtime-repair path instead of the layout path.
type RenderError struct {
	Diagnostic string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering failed: %s", e.Diagnostic)
}

// Renderer executes instrumented artifacts and extracts their scene graphs.
type Renderer struct {
	runner sandbox.Runner
}

// NewRenderer creates a renderer backed by the given sandbox runner.
func NewRenderer(runner sandbox.Runner) *Renderer {
	return &Renderer{runner: runner}
}

// Render instruments the artifact, runs it in a fresh isolation root under
// baseDir, and returns the validated scene. A failing or non-emitting script
// yields a *RenderError; infrastructure problems yield ordinary errors.
func (r *Renderer) Render(ctx context.Context, artifact string, baseDir string) (*types.Scene, error) {
	instrumented := Instrument(artifact)

	result, err := r.runner.Run(ctx, instrumented, baseDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox execution for rendering failed: %w", err)
	}
	if !result.OK {
		return nil, &RenderError{Diagnostic: result.Output}
	}

	raw, err := os.ReadFile(filepath.Join(result.Dir, sceneFilename))
	if err != nil {
		return nil, &RenderError{Diagnostic: fmt.Sprintf("script ran but produced no scene metadata: %v", err)}
	}

	if err := validateSceneJSON(string(raw)); err != nil {
		return nil, &RenderError{Diagnostic: fmt.Sprintf("scene metadata is malformed: %v", err)}
	}

	var scene types.Scene
	if err := json.Unmarshal(raw, &scene); err != nil {
		return nil, &RenderError{Diagnostic: fmt.Sprintf("scene metadata could not be decoded: %v", err)}
	}
	return &scene, nil
}

// validateSceneJSON checks the emitted document against the embedded schema.
func validateSceneJSON(document string) error {
	schemaLoader := gojsonschema.NewStringLoader(sceneSchema)
	documentLoader := gojsonschema.NewStringLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation could not run: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var sb strings.Builder
	for i, desc := range result.Errors() {
		if i > 0 {
			sb.WriteString("; ")
		}
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		fmt.Fprintf(&sb, "%s: %s", field, desc.Description())
	}
	return fmt.Errorf("%s", sb.String())
}

// Instrument rewrites the artifact so the drawing object survives the
// drawing context and appends the metadata extraction epilogue. The rewrite
// is textual and tolerant: scripts that already bind the drawing to a
// variable pass through unchanged.
func Instrument(artifact string) string {
	modified := strings.Replace(artifact, "with schemdraw.Drawing(", "d = schemdraw.Drawing(", 1)
	return modified + "\n\n" + metadataEpilogue
}

// metadataEpilogue walks the finalized drawing and dumps every element's
// identity, bounding box, anchors, line endpoints, and label attachment as
// scene.json in the working directory. It never raises; extraction problems surface as a
// missing or partial file.
const metadataEpilogue = `# --- SCENE EXTRACTION ---
try:
    import json as _json

    _elements = []
    _counts = {}
    _ids = {}
    _pairs = []
    for _el in d.elements:
        _etype = type(_el).__name__
        _counts[_etype] = _counts.get(_etype, 0) + 1
        _eid = f"{_etype}_{_counts[_etype]}"

        _lower = _etype.lower()
        if "line" in _lower or "wire" in _lower:
            _kind = "line"
        elif "label" in _lower or "annotate" in _lower:
            _kind = "label"
        else:
            _kind = "component"

        _entry = {"id": _eid, "type": _etype, "kind": _kind}
        _ids[id(_el)] = _eid
        _pairs.append((_el, _entry))
        try:
            _bb = _el.get_bbox(transform=True)
            _entry["bbox"] = {
                "xmin": round(_bb.xmin, 3), "ymin": round(_bb.ymin, 3),
                "xmax": round(_bb.xmax, 3), "ymax": round(_bb.ymax, 3),
            }
        except Exception:
            pass

        _anchors = {}
        for _name in getattr(_el, "anchors", {}):
            try:
                _pt = getattr(_el, _name)
                _anchors[_name] = {"x": round(_pt.x, 3), "y": round(_pt.y, 3)}
            except Exception:
                pass
        if _anchors:
            _entry["anchors"] = _anchors

        if _kind == "line" and "start" in _anchors and "end" in _anchors:
            _entry["start"] = _anchors["start"]
            _entry["end"] = _anchors["end"]

        _elements.append(_entry)

    # Labels carry a reference to the element they annotate; resolve it to
    # the generated id so overlap analysis can tell decoration from defect.
    for _el, _entry in _pairs:
        _parent = getattr(_el, "_attach_to", None)
        if _parent is not None and id(_parent) in _ids:
            _entry["attached_to"] = _ids[id(_parent)]

    with open("scene.json", "w", encoding="utf-8") as _f:
        _json.dump({"elements": _elements}, _f, indent=2)
except NameError:
    print("scene extraction skipped: drawing object 'd' not found")
except Exception as _exc:
    print(f"scene extraction failed: {_exc}")
# --- END SCENE EXTRACTION ---
`
