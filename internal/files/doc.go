// Package files locates requested documents in the local storage directory.
//
// A requested name is expanded into candidate names (the name itself, then
// extension variants), and each candidate is compared against the directory
// listing after Normalize, ignoring case. Files above the size limit go
// through a Compressor before delivery; PDFCompressor uses pdfcpu.
package files
