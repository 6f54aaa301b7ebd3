package engine

// Key shapes differ per calibration type on purpose: bias never keys on
// exposure, flats additionally key on filter and night. Explicit structs keep
// the matcher and the builder from silently disagreeing on key layout.

type darkKey struct {
	exp        float64 // rounded to 0.1 s
	temp       int     // rounded to whole °C
	binX, binY int
	instrument optStr
}

type biasKey struct {
	temp       int
	binX, binY int
	instrument optStr
}

type flatKey struct {
	filter     optStr
	date       string
	temp       int
	binX, binY int
	instrument optStr
}

// bucket aggregates the frames sharing one rounded key.
type bucket struct {
	count   int // non-master frames
	masters int
	tempSum float64
	tempN   int
}

func (b *bucket) add(f Frame) {
	if f.Master {
		b.masters++
	} else {
		b.count++
	}
	if v, ok := f64(f.Temperature); ok {
		b.tempSum += v
		b.tempN++
	}
}

// Cache is the per-run calibration index. It is built once from a single scan
// of the calibration frames, owned exclusively by its aggregation run, and
// read-only after BuildCache returns.
type Cache struct {
	darks map[darkKey]*bucket
	bias  map[biasKey]*bucket
	flats map[flatKey]*bucket

	// Unusable counts calibration frames that lack a required attribute for
	// their type and were therefore excluded from the index.
	Unusable int
}

// BuildCache scans calibration frames once and indexes them by rounded
// physical attributes. Requirements per type: darks need exposure and
// temperature, bias needs temperature, flats need a capture date and
// temperature. Frames missing a requirement are excluded and counted, never
// matched by accident. Master frames land in the same buckets as regular
// frames but are tallied separately.
func BuildCache(frames []Frame) *Cache {
	c := &Cache{
		darks: make(map[darkKey]*bucket),
		bias:  make(map[biasKey]*bucket),
		flats: make(map[flatKey]*bucket),
	}
	for _, f := range frames {
		switch f.Kind {
		case KindDark:
			exp, expOK := f64(f.Exposure)
			temp, tempOK := f64(f.Temperature)
			if !expOK || !tempOK {
				c.Unusable++
				continue
			}
			key := darkKey{
				exp:        roundTenth(exp),
				temp:       roundDegree(temp),
				binX:       f.BinX,
				binY:       f.BinY,
				instrument: optOf(f.Instrument),
			}
			c.darkBucket(key).add(f)
		case KindBias:
			temp, tempOK := f64(f.Temperature)
			if !tempOK {
				c.Unusable++
				continue
			}
			key := biasKey{
				temp:       roundDegree(temp),
				binX:       f.BinX,
				binY:       f.BinY,
				instrument: optOf(f.Instrument),
			}
			c.biasBucket(key).add(f)
		case KindFlat:
			temp, tempOK := f64(f.Temperature)
			if !tempOK || f.Date == nil {
				c.Unusable++
				continue
			}
			key := flatKey{
				filter:     optOf(f.Filter),
				date:       *f.Date,
				temp:       roundDegree(temp),
				binX:       f.BinX,
				binY:       f.BinY,
				instrument: optOf(f.Instrument),
			}
			c.flatBucket(key).add(f)
		}
	}
	return c
}

func (c *Cache) darkBucket(k darkKey) *bucket {
	b, ok := c.darks[k]
	if !ok {
		b = &bucket{}
		c.darks[k] = b
	}
	return b
}

func (c *Cache) biasBucket(k biasKey) *bucket {
	b, ok := c.bias[k]
	if !ok {
		b = &bucket{}
		c.bias[k] = b
	}
	return b
}

func (c *Cache) flatBucket(k flatKey) *bucket {
	b, ok := c.flats[k]
	if !ok {
		b = &bucket{}
		c.flats[k] = b
	}
	return b
}
