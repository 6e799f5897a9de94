package proctor

import (
	"image"
	"sort"
)

// TrackedPerson is a face kept in the registry between consecutive frames.
type TrackedPerson struct {
	Handle uint64
	Box    image.Rectangle
	Seen   int // consecutive frames this handle has been matched
}

// PersonTracker keeps the set of faces visible in the current frame.
// Handles survive across frames only while the box keeps overlapping;
// a face that leaves the frame is forgotten.
type PersonTracker struct {
	minIoU   float64
	nextID   uint64
	registry map[uint64]*TrackedPerson
}

func NewPersonTracker(minIoU float64) *PersonTracker {
	return &PersonTracker{
		minIoU:   minIoU,
		registry: map[uint64]*TrackedPerson{},
	}
}

type overlap struct {
	handle uint64
	det    int
	iou    float64
}

// Update reconciles the registry with the current frame's detections and
// returns the live person count.
func (t *PersonTracker) Update(dets []FaceDetection) int {
	boxes := distinctBoxes(dets)

	var pairs []overlap
	for h, p := range t.registry {
		for i, b := range boxes {
			if v := IoU(p.Box, b); v >= t.minIoU {
				pairs = append(pairs, overlap{handle: h, det: i, iou: v})
			}
		}
	}
	// Greedy, highest overlap first. Ties broken on handle then box so the
	// outcome never depends on map or detection order.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].iou != pairs[j].iou {
			return pairs[i].iou > pairs[j].iou
		}
		if pairs[i].handle != pairs[j].handle {
			return pairs[i].handle < pairs[j].handle
		}
		return lessRect(boxes[pairs[i].det], boxes[pairs[j].det])
	})

	next := make(map[uint64]*TrackedPerson, len(boxes))
	usedDet := make([]bool, len(boxes))
	for _, pr := range pairs {
		if usedDet[pr.det] {
			continue
		}
		if _, ok := next[pr.handle]; ok {
			continue
		}
		p := t.registry[pr.handle]
		p.Box = boxes[pr.det]
		p.Seen++
		next[pr.handle] = p
		usedDet[pr.det] = true
	}

	for i, b := range boxes {
		if usedDet[i] {
			continue
		}
		t.nextID++
		next[t.nextID] = &TrackedPerson{Handle: t.nextID, Box: b, Seen: 1}
	}

	t.registry = next
	return len(t.registry)
}

// Count is the registry size after the last Update.
func (t *PersonTracker) Count() int {
	return len(t.registry)
}

// Persons returns the tracked faces ordered by handle.
func (t *PersonTracker) Persons() []TrackedPerson {
	out := make([]TrackedPerson, 0, len(t.registry))
	for _, p := range t.registry {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// IoU is the intersection over union of two rectangles.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

// distinctBoxes drops repeated bounding regions and empty boxes, sorted so
// that the result does not depend on detection order.
func distinctBoxes(dets []FaceDetection) []image.Rectangle {
	seen := make(map[image.Rectangle]struct{}, len(dets))
	out := make([]image.Rectangle, 0, len(dets))
	for _, d := range dets {
		b := d.Box.Canon()
		if b.Empty() {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return lessRect(out[i], out[j]) })
	return out
}

func lessRect(a, b image.Rectangle) bool {
	switch {
	case a.Min.X != b.Min.X:
		return a.Min.X < b.Min.X
	case a.Min.Y != b.Min.Y:
		return a.Min.Y < b.Min.Y
	case a.Max.X != b.Max.X:
		return a.Max.X < b.Max.X
	default:
		return a.Max.Y < b.Max.Y
	}
}
