package writer

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/wudi/scrollpdf/contentstream"
	"github.com/wudi/scrollpdf/ir/raw"
	"github.com/wudi/scrollpdf/ir/semantic"
)

type impl struct{}

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	raw.Encode(&buf, obj)
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

func (w *impl) Write(ctx context.Context, doc *semantic.Document, out io.Writer, cfg Config) error {
	if doc == nil || len(doc.Pages) == 0 {
		return fmt.Errorf("document has no pages")
	}
	b := newObjectBuilder(doc, cfg)
	objects, catalogRef, infoRef, err := b.build(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")
	offsets := make(map[int]int64, len(objects))

	ordered := make([]raw.ObjectRef, 0, len(objects))
	for ref := range objects {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Num < ordered[j].Num })
	for _, ref := range ordered {
		offset := int64(buf.Len())
		serialized, err := w.SerializeObject(ref, objects[ref])
		if err != nil {
			return err
		}
		buf.Write(serialized)
		offsets[ref.Num] = offset
	}
	id := md5.Sum(buf.Bytes())

	xrefOffset := buf.Len()
	maxObjNum := ordered[len(ordered)-1].Num
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxObjNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxObjNum; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := raw.Dict().
		Set("Size", raw.Int(int64(maxObjNum+1))).
		Set("Root", raw.Ref(catalogRef)).
		Set("ID", raw.NewArray(raw.StringObj{Bytes: id[:], Hex: true}, raw.StringObj{Bytes: id[:], Hex: true}))
	if infoRef != nil {
		trailer.Set("Info", raw.Ref(*infoRef))
	}
	buf.WriteString("trailer\n")
	raw.Encode(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = out.Write(buf.Bytes())
	return err
}

type objectBuilder struct {
	doc     *semantic.Document
	cfg     Config
	objects map[raw.ObjectRef]raw.Object
	objNum  int

	fontRefs  map[*semantic.Font]raw.ObjectRef
	imageRefs map[*semantic.Image]raw.ObjectRef
}

func newObjectBuilder(doc *semantic.Document, cfg Config) *objectBuilder {
	return &objectBuilder{
		doc:       doc,
		cfg:       cfg,
		objects:   make(map[raw.ObjectRef]raw.Object),
		objNum:    1,
		fontRefs:  make(map[*semantic.Font]raw.ObjectRef),
		imageRefs: make(map[*semantic.Image]raw.ObjectRef),
	}
}

func (b *objectBuilder) nextRef() raw.ObjectRef {
	ref := raw.ObjectRef{Num: b.objNum, Gen: 0}
	b.objNum++
	return ref
}

func (b *objectBuilder) build(ctx context.Context) (map[raw.ObjectRef]raw.Object, raw.ObjectRef, *raw.ObjectRef, error) {
	catalogRef := b.nextRef()
	pagesRef := b.nextRef()
	infoRef := b.info()

	kids := raw.NewArray()
	for _, p := range b.doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, raw.ObjectRef{}, nil, err
		}
		pageRef, err := b.page(p, pagesRef)
		if err != nil {
			return nil, raw.ObjectRef{}, nil, fmt.Errorf("page %d: %w", p.Index+1, err)
		}
		kids.Append(raw.Ref(pageRef))
	}
	b.objects[pagesRef] = raw.Dict().
		Set("Type", raw.Name("Pages")).
		Set("Count", raw.Int(int64(kids.Len()))).
		Set("Kids", kids)

	catalog := raw.Dict().
		Set("Type", raw.Name("Catalog")).
		Set("Pages", raw.Ref(pagesRef))
	if b.doc.Lang != "" {
		catalog.Set("Lang", raw.Text(b.doc.Lang))
	}
	b.objects[catalogRef] = catalog
	return b.objects, catalogRef, infoRef, nil
}

func (b *objectBuilder) info() *raw.ObjectRef {
	infoDict := raw.Dict()
	if info := b.doc.Info; info != nil {
		if info.Title != "" {
			infoDict.Set("Title", raw.Text(info.Title))
		}
		if info.Author != "" {
			infoDict.Set("Author", raw.Text(info.Author))
		}
		if info.Subject != "" {
			infoDict.Set("Subject", raw.Text(info.Subject))
		}
		if info.Creator != "" {
			infoDict.Set("Creator", raw.Text(info.Creator))
		}
		if info.Producer != "" {
			infoDict.Set("Producer", raw.Text(info.Producer))
		}
		if len(info.Keywords) > 0 {
			infoDict.Set("Keywords", raw.Text(strings.Join(info.Keywords, ",")))
		}
	}
	if !b.cfg.Deterministic {
		infoDict.Set("CreationDate", raw.Text(formatDate(time.Now())))
	}
	if infoDict.Len() == 0 {
		return nil
	}
	ref := b.nextRef()
	b.objects[ref] = infoDict
	return &ref
}

func (b *objectBuilder) page(p *semantic.Page, parent raw.ObjectRef) (raw.ObjectRef, error) {
	resDict := raw.Dict()
	if p.Resources != nil {
		if len(p.Resources.Fonts) > 0 {
			fonts := raw.Dict()
			for _, name := range sortedKeys(p.Resources.Fonts) {
				ref, err := b.font(p.Resources.Fonts[name])
				if err != nil {
					return raw.ObjectRef{}, fmt.Errorf("font %s: %w", name, err)
				}
				fonts.Set(name, raw.Ref(ref))
			}
			resDict.Set("Font", fonts)
		}
		if len(p.Resources.XObjects) > 0 {
			xobjects := raw.Dict()
			for _, name := range sortedKeys(p.Resources.XObjects) {
				ref, err := b.image(p.Resources.XObjects[name])
				if err != nil {
					return raw.ObjectRef{}, fmt.Errorf("image %s: %w", name, err)
				}
				xobjects.Set(name, raw.Ref(ref))
			}
			resDict.Set("XObject", xobjects)
		}
	}

	var content []byte
	for _, cs := range p.Contents {
		content = append(content, contentstream.Encode(cs.Operations)...)
	}
	contentDict := raw.Dict()
	if b.cfg.Compression != 0 {
		data, err := flateEncode(content, b.cfg.Compression)
		if err != nil {
			return raw.ObjectRef{}, err
		}
		content = data
		contentDict.Set("Filter", raw.Name("FlateDecode"))
	}
	contentRef := b.nextRef()
	b.objects[contentRef] = raw.NewStream(contentDict, content)

	box := p.MediaBox
	ref := b.nextRef()
	b.objects[ref] = raw.Dict().
		Set("Type", raw.Name("Page")).
		Set("Parent", raw.Ref(parent)).
		Set("MediaBox", raw.Numbers(box.LLX, box.LLY, box.URX, box.URY)).
		Set("Resources", resDict).
		Set("Contents", raw.Ref(contentRef))
	return ref, nil
}

func (b *objectBuilder) font(f *semantic.Font) (raw.ObjectRef, error) {
	if ref, ok := b.fontRefs[f]; ok {
		return ref, nil
	}
	subtype := f.Subtype
	if subtype == "" {
		subtype = "Type1"
	}
	dict := raw.Dict().
		Set("Type", raw.Name("Font")).
		Set("Subtype", raw.Name(subtype)).
		Set("BaseFont", raw.Name(f.BaseFont))
	if f.Encoding != "" {
		dict.Set("Encoding", raw.Name(f.Encoding))
	}
	if len(f.Widths) > 0 && f.LastChar >= f.FirstChar {
		widths := raw.NewArray()
		for code := f.FirstChar; code <= f.LastChar; code++ {
			widths.Append(raw.Int(int64(f.Widths[code])))
		}
		dict.Set("FirstChar", raw.Int(int64(f.FirstChar))).
			Set("LastChar", raw.Int(int64(f.LastChar))).
			Set("Widths", widths)
	}
	if d := f.Descriptor; d != nil {
		desc := raw.Dict().
			Set("Type", raw.Name("FontDescriptor")).
			Set("FontName", raw.Name(d.FontName)).
			Set("Flags", raw.Int(int64(d.Flags))).
			Set("ItalicAngle", raw.Float(d.ItalicAngle)).
			Set("Ascent", raw.Float(d.Ascent)).
			Set("Descent", raw.Float(d.Descent)).
			Set("CapHeight", raw.Float(d.CapHeight)).
			Set("StemV", raw.Int(int64(d.StemV))).
			Set("FontBBox", raw.Numbers(d.FontBBox[:]...))
		if len(d.FontFile) > 0 {
			data := d.FontFile
			fileDict := raw.Dict().Set("Length1", raw.Int(int64(len(data))))
			if b.cfg.Compression != 0 {
				enc, err := flateEncode(data, b.cfg.Compression)
				if err != nil {
					return raw.ObjectRef{}, err
				}
				data = enc
				fileDict.Set("Filter", raw.Name("FlateDecode"))
			}
			fileRef := b.nextRef()
			b.objects[fileRef] = raw.NewStream(fileDict, data)
			desc.Set("FontFile2", raw.Ref(fileRef))
		}
		descRef := b.nextRef()
		b.objects[descRef] = desc
		dict.Set("FontDescriptor", raw.Ref(descRef))
	}
	ref := b.nextRef()
	b.objects[ref] = dict
	b.fontRefs[f] = ref
	return ref, nil
}

func (b *objectBuilder) image(img *semantic.Image) (raw.ObjectRef, error) {
	if ref, ok := b.imageRefs[img]; ok {
		return ref, nil
	}
	if img.Width <= 0 || img.Height <= 0 {
		return raw.ObjectRef{}, fmt.Errorf("invalid image size %dx%d", img.Width, img.Height)
	}
	colorSpace := img.ColorSpace
	if colorSpace == "" {
		colorSpace = "DeviceRGB"
	}
	bpc := img.BitsPerComponent
	if bpc == 0 {
		bpc = 8
	}
	dict := raw.Dict().
		Set("Type", raw.Name("XObject")).
		Set("Subtype", raw.Name("Image")).
		Set("Width", raw.Int(int64(img.Width))).
		Set("Height", raw.Int(int64(img.Height))).
		Set("ColorSpace", raw.Name(colorSpace)).
		Set("BitsPerComponent", raw.Int(int64(bpc)))

	data := img.Data
	if img.Filter != "" {
		dict.Set("Filter", raw.Name(img.Filter))
	} else {
		level := b.cfg.Compression
		if level == 0 {
			level = zlib.BestSpeed
		}
		enc, err := flateEncode(data, level)
		if err != nil {
			return raw.ObjectRef{}, err
		}
		data = enc
		dict.Set("Filter", raw.Name("FlateDecode"))
	}
	if img.SMask != nil {
		maskRef, err := b.image(img.SMask)
		if err != nil {
			return raw.ObjectRef{}, fmt.Errorf("soft mask: %w", err)
		}
		dict.Set("SMask", raw.Ref(maskRef))
	}
	ref := b.nextRef()
	b.objects[ref] = raw.NewStream(dict, data)
	b.imageRefs[img] = ref
	return ref, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flateEncode(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatDate(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("D:%04d%02d%02d%02d%02d%02dZ", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}
