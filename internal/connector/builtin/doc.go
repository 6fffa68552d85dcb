// Package builtin содержит коннекторы, поставляемые вместе с conveyor.
//
// Ядро не знает ничего о конкретных коннекторах; этот пакет — набор
// реализаций, которые main регистрирует в connector.Registry:
//
//   - http: Extractor, выкачивающий JSON из REST API
//   - file: Extractor и Loader для локальных JSON/CSV файлов
//   - mapping: Transformer, переименовывающий и фильтрующий колонки
//   - rules: Checker с правилами not_null, range, min_rows, schema
//
// Все коннекторы материализуют строки в staging-директории как JSON:
// Dataset.Ref указывает на файл, потребители читают его по ссылке.
package builtin
