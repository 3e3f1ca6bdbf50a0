/*
Copyright 2024 The ENCODE DCC Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package validate

// formatKey identifies a validateFiles argument set by (file_format,
// file_format_type). An empty FormatType matches the "None" subtype used
// by single-subtype formats.
type formatKey struct {
	Format     string
	FormatType string
}

// entry is one row of the lookup table: the -type= variant and, when the
// variant has a schema, the .as file name relative to encValData/as/.
type entry struct {
	typeArg  string
	tab      bool
	asFile   string
	needsChromInfo bool
}

// table is the immutable (format, subtype) -> validateFiles argument-set
// lookup. A nil entry (absent key) means the format is opaque: no
// validateFiles invocation is attempted for it.
var table = map[formatKey]*entry{
	{"fasta", ""}:  {typeArg: "fasta"},
	{"fastq", ""}:  {typeArg: "fastq"},
	{"bam", ""}:    {typeArg: "bam", needsChromInfo: true},
	{"bigWig", ""}: {typeArg: "bigWig", needsChromInfo: true},
	{"bigInteract", ""}: {typeArg: "bigBed5+13", needsChromInfo: true, asFile: "interact.as"},

	{"bed", "bed3"}:    {typeArg: "bed3", needsChromInfo: true},
	{"bigBed", "bed3"}: {typeArg: "bigBed3", needsChromInfo: true},
	{"bed", "bed5"}:    {typeArg: "bed5", needsChromInfo: true},
	{"bigBed", "bed5"}: {typeArg: "bigBed5", needsChromInfo: true},
	{"bed", "bed6"}:    {typeArg: "bed6", needsChromInfo: true},
	{"bigBed", "bed6"}: {typeArg: "bigBed6", needsChromInfo: true},
	{"bed", "bed9"}:    {typeArg: "bed9", needsChromInfo: true},
	{"bigBed", "bed9"}: {typeArg: "bigBed9", needsChromInfo: true},
	{"bedGraph", ""}:   {typeArg: "bedGraph", needsChromInfo: true},

	{"bed", "bed3+"}:    {typeArg: "bed3+", tab: true, needsChromInfo: true},
	{"bigBed", "bed3+"}: {typeArg: "bigBed3+", tab: true, needsChromInfo: true},
	{"bed", "bed6+"}:    {typeArg: "bed6+", tab: true, needsChromInfo: true},
	{"bigBed", "bed6+"}: {typeArg: "bigBed6+", tab: true, needsChromInfo: true},
	{"bed", "bed9+"}:    {typeArg: "bed9+", tab: true, needsChromInfo: true},
	{"bigBed", "bed9+"}: {typeArg: "bigBed9+", tab: true, needsChromInfo: true},

	{"bed", "unknown"}:    {typeArg: "bed3+", tab: true, needsChromInfo: true},
	{"bigBed", "unknown"}: {typeArg: "bigBed3+", tab: true, needsChromInfo: true},

	{"bed", "bedLogR"}:    {typeArg: "bed9+1", needsChromInfo: true, asFile: "bedLogR.as"},
	{"bigBed", "bedLogR"}: {typeArg: "bigBed9+1", needsChromInfo: true, asFile: "bedLogR.as"},
	{"bed", "bedMethyl"}:    {typeArg: "bed9+2", needsChromInfo: true, asFile: "bedMethyl.as"},
	{"bigBed", "bedMethyl"}: {typeArg: "bigBed9+2", needsChromInfo: true, asFile: "bedMethyl.as"},
	{"bed", "broadPeak"}:    {typeArg: "bed6+3", needsChromInfo: true, asFile: "broadPeak.as"},
	{"bigBed", "broadPeak"}: {typeArg: "bigBed6+3", needsChromInfo: true, asFile: "broadPeak.as"},
	{"bed", "gappedPeak"}:    {typeArg: "bed12+3", needsChromInfo: true, asFile: "gappedPeak.as"},
	{"bigBed", "gappedPeak"}: {typeArg: "bigBed12+3", needsChromInfo: true, asFile: "gappedPeak.as"},
	{"bed", "narrowPeak"}:    {typeArg: "bed6+4", needsChromInfo: true, asFile: "narrowPeak.as"},
	{"bigBed", "narrowPeak"}: {typeArg: "bigBed6+4", needsChromInfo: true, asFile: "narrowPeak.as"},
	{"bed", "bedRnaElements"}:    {typeArg: "bed6+3", needsChromInfo: true, asFile: "bedRnaElements.as"},
	{"bigBed", "bedRnaElements"}: {typeArg: "bed6+3", needsChromInfo: true, asFile: "bedRnaElements.as"},
	{"bed", "bedExonScore"}:    {typeArg: "bed6+3", needsChromInfo: true, asFile: "bedExonScore.as"},
	{"bigBed", "bedExonScore"}: {typeArg: "bigBed6+3", needsChromInfo: true, asFile: "bedExonScore.as"},
	{"bed", "bedRrbs"}:    {typeArg: "bed9+2", needsChromInfo: true, asFile: "bedRrbs.as"},
	{"bigBed", "bedRrbs"}: {typeArg: "bigBed9+2", needsChromInfo: true, asFile: "bedRrbs.as"},
	{"bed", "enhancerAssay"}:    {typeArg: "bed9+1", needsChromInfo: true, asFile: "enhancerAssay.as"},
	{"bigBed", "enhancerAssay"}: {typeArg: "bigBed9+1", needsChromInfo: true, asFile: "enhancerAssay.as"},
	{"bed", "modPepMap"}:    {typeArg: "bed9+7", needsChromInfo: true, asFile: "modPepMap.as"},
	{"bigBed", "modPepMap"}: {typeArg: "bigBed9+7", needsChromInfo: true, asFile: "modPepMap.as"},
	{"bed", "pepMap"}:    {typeArg: "bed9+7", needsChromInfo: true, asFile: "pepMap.as"},
	{"bigBed", "pepMap"}: {typeArg: "bigBed9+7", needsChromInfo: true, asFile: "pepMap.as"},
	{"bed", "openChromCombinedPeaks"}:    {typeArg: "bed9+12", needsChromInfo: true, asFile: "openChromCombinedPeaks.as"},
	{"bigBed", "openChromCombinedPeaks"}: {typeArg: "bigBed9+12", needsChromInfo: true, asFile: "openChromCombinedPeaks.as"},
	{"bed", "peptideMapping"}:    {typeArg: "bed6+4", needsChromInfo: true, asFile: "peptideMapping.as"},
	{"bigBed", "peptideMapping"}: {typeArg: "bigBed6+4", needsChromInfo: true, asFile: "peptideMapping.as"},
	{"bed", "shortFrags"}:    {typeArg: "bed6+21", needsChromInfo: true, asFile: "shortFrags.as"},
	{"bigBed", "shortFrags"}: {typeArg: "bigBed6+21", needsChromInfo: true, asFile: "shortFrags.as"},
	{"bed", "encode_elements_H3K27ac"}:    {typeArg: "bed9+1", tab: true, needsChromInfo: true, asFile: "encode_elements_H3K27ac.as"},
	{"bigBed", "encode_elements_H3K27ac"}: {typeArg: "bigBed9+1", tab: true, needsChromInfo: true, asFile: "encode_elements_H3K27ac.as"},
	{"bed", "encode_elements_H3K9ac"}:    {typeArg: "bed9+1", tab: true, needsChromInfo: true, asFile: "encode_elements_H3K9ac.as"},
	{"bigBed", "encode_elements_H3K9ac"}: {typeArg: "bigBed9+1", tab: true, needsChromInfo: true, asFile: "encode_elements_H3K9ac.as"},
	{"bed", "encode_elements_H3K4me1"}:    {typeArg: "bed9+1", tab: true, needsChromInfo: true, asFile: "encode_elements_H3K4me1.as"},
	{"bigBed", "encode_elements_H3K4me1"}: {typeArg: "bigBed9+1", tab: true, needsChromInfo: true, asFile: "encode_elements_H3K4me1.as"},
	{"bed", "encode_elements_H3K4me3"}:    {typeArg: "bed9+1", tab: true, needsChromInfo: true, asFile: "encode_elements_H3K4me3.as"},
	{"bigBed", "encode_elements_H3K4me3"}: {typeArg: "bigBed9+1", tab: true, needsChromInfo: true, asFile: "encode_elements_H3K4me3.as"},
	{"bed", "dnase_master_peaks"}:    {typeArg: "bed9+1", tab: true, needsChromInfo: true, asFile: "dnase_master_peaks.as"},
	{"bigBed", "dnase_master_peaks"}: {typeArg: "bigBed9+1", tab: true, needsChromInfo: true, asFile: "dnase_master_peaks.as"},
	{"bed", "encode_elements_dnase_tf"}:    {typeArg: "bed5+1", tab: true, needsChromInfo: true, asFile: "encode_elements_dnase_tf.as"},
	{"bigBed", "encode_elements_dnase_tf"}: {typeArg: "bigBed5+1", tab: true, needsChromInfo: true, asFile: "encode_elements_dnase_tf.as"},
	{"bed", "candidate enhancer predictions"}:    {typeArg: "bed3+", needsChromInfo: true, asFile: "candidate_enhancer_prediction.as"},
	{"bigBed", "candidate enhancer predictions"}: {typeArg: "bigBed3+", needsChromInfo: true, asFile: "candidate_enhancer_prediction.as"},
	{"bed", "enhancer predictions"}:    {typeArg: "bed3+", needsChromInfo: true, asFile: "enhancer_prediction.as"},
	{"bigBed", "enhancer predictions"}: {typeArg: "bigBed3+", needsChromInfo: true, asFile: "enhancer_prediction.as"},
	{"bed", "idr_peak"}:    {typeArg: "bed6+", needsChromInfo: true, asFile: "idr_peak.as"},
	{"bigBed", "idr_peak"}: {typeArg: "bigBed6+", needsChromInfo: true, asFile: "idr_peak.as"},
	{"bed", "tss_peak"}:    {typeArg: "bed6+", needsChromInfo: true, asFile: "tss_peak.as"},
	{"bigBed", "tss_peak"}: {typeArg: "bigBed6+", needsChromInfo: true, asFile: "tss_peak.as"},
	{"bed", "idr_ranked_peak"}: {typeArg: "bed6+14", needsChromInfo: true, asFile: "idr_ranked_peak.as"},
	{"bed", "element enrichments"}:    {typeArg: "bed6+5", needsChromInfo: true, asFile: "mpra_starr.as"},
	{"bigBed", "element enrichments"}: {typeArg: "bigBed6+5", needsChromInfo: true, asFile: "mpra_starr.as"},
	{"bed", "CRISPR element quantifications"}: {typeArg: "bed3+22", needsChromInfo: true, asFile: "element_quant_format.as"},

	{"bedpe", ""}:      {typeArg: "bed3+", needsChromInfo: true},
	{"bedpe", "mango"}: {typeArg: "bed3+", needsChromInfo: true},

	{"rcc", ""}:     {typeArg: "rcc"},
	{"idat", ""}:    {typeArg: "idat"},
	{"tagAlign", ""}: {typeArg: "tagAlign", needsChromInfo: true},
	{"csfasta", ""}: {typeArg: "csfasta"},
	{"csqual", ""}:  {typeArg: "csqual"},

	// opaque formats: validateFiles is never invoked
	{"gtf", ""}:   nil,
	{"tar", ""}:   nil,
	{"tsv", ""}:   nil,
	{"csv", ""}:   nil,
	{"2bit", ""}:  nil,
	{"CEL", ""}:   nil,
	{"sam", ""}:   nil,
	{"wig", ""}:   nil,
	{"hdf5", ""}:  nil,
	{"hic", ""}:   nil,
	{"gff", ""}:   nil,
	{"vcf", ""}:   nil,
	{"btr", ""}:   nil,
}

// lookup returns the table entry (possibly nil, meaning opaque) and
// whether the (format, formatType) key was present at all. A missing key
// is distinct from a present-but-nil ("None") key in the original table,
// but both result in skipping validateFiles.
func lookup(format, formatType string) (*entry, bool) {
	e, ok := table[formatKey{format, formatType}]
	return e, ok
}

// GZIPTypes are the file formats submitters are expected to upload
// gzip-compressed.
var GZIPTypes = map[string]bool{
	"CEL": true, "bam": true, "bed": true, "bedpe": true, "csfasta": true,
	"csqual": true, "fasta": true, "fastq": true, "gff": true, "gtf": true,
	"tagAlign": true, "tar": true, "txt": true, "sam": true, "wig": true,
	"vcf": true, "pairs": true,
}

// assemblyMap collapses the "-minimal" assembly variants onto their base
// assembly for encValData path lookups.
var assemblyMap = map[string]string{
	"GRCh38-minimal": "GRCh38",
	"mm10-minimal":   "mm10",
}

// ResolveAssembly applies the -minimal collapsing rule.
func ResolveAssembly(assembly string) string {
	if mapped, ok := assemblyMap[assembly]; ok {
		return mapped
	}
	return assembly
}
